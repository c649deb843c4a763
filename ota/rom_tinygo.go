//go:build tinygo

package ota

/*
#include <stdint.h>
#include <stddef.h>

#define ROM_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_REBOOT         ROM_CODE('R', 'B')
#define ROM_EXPLICIT_BUY   ROM_CODE('E', 'B')
#define ROM_GET_SYS_INFO   ROM_CODE('G', 'S')
#define ROM_CONNECT_FLASH  ROM_CODE('I', 'F')
#define ROM_EXIT_XIP       ROM_CODE('E', 'X')
#define ROM_RANGE_ERASE    ROM_CODE('R', 'E')
#define ROM_RANGE_PROGRAM  ROM_CODE('R', 'P')
#define ROM_FLUSH_CACHE    ROM_CODE('F', 'C')

// Bootrom well-known pointer to the table lookup function.
#define ROM_LOOKUP_PTR     0x16
// TinyGo runs in the secure state.
#define ROM_FLAG_ARM_SEC   0x0004

#define REBOOT_TYPE_NORMAL        0x0
#define REBOOT_TYPE_FLASH_UPDATE  0x4
#define REBOOT_NO_RETURN          0x100

#define SYS_INFO_BOOT_INFO 0x0040
#define SECTOR_ERASE_CMD   0x20

#define WATCHDOG_CTRL      0x400d8000
#define WATCHDOG_TRIGGER   (1u << 31)

typedef void *(*rom_lookup_fn)(uint32_t code, uint32_t mask);

static void *rom_func(uint32_t code) {
	rom_lookup_fn lookup = (rom_lookup_fn)(uintptr_t)*(uint16_t *)(ROM_LOOKUP_PTR);
	return lookup(code, ROM_FLAG_ARM_SEC);
}

typedef void (*flash_void_fn)(void);
typedef void (*flash_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t cmd);
typedef void (*flash_program_fn)(uint32_t addr, const uint8_t *data, size_t count);

// Flash ops run with interrupts masked and XIP exited; the cache flush
// puts XIP back.
static int rom_flash_op(int erase, uint32_t offset, const uint8_t *data, uint32_t count) {
	flash_void_fn connect = (flash_void_fn)rom_func(ROM_CONNECT_FLASH);
	flash_void_fn exit_xip = (flash_void_fn)rom_func(ROM_EXIT_XIP);
	flash_void_fn flush = (flash_void_fn)rom_func(ROM_FLUSH_CACHE);
	flash_erase_fn erase_fn = (flash_erase_fn)rom_func(ROM_RANGE_ERASE);
	flash_program_fn program_fn = (flash_program_fn)rom_func(ROM_RANGE_PROGRAM);
	if (!connect || !exit_xip || !flush || !erase_fn || !program_fn) {
		return -1;
	}

	uint32_t primask;
	__asm__ volatile ("mrs %0, primask" : "=r" (primask));
	__asm__ volatile ("cpsid i");
	connect();
	exit_xip();
	if (erase) {
		erase_fn(offset, count, 4096, SECTOR_ERASE_CMD);
	} else {
		program_fn(offset, data, count);
	}
	flush();
	__asm__ volatile ("msr primask, %0" : : "r" (primask));
	return 0;
}

static int rom_erase(uint32_t offset, uint32_t count) {
	return rom_flash_op(1, offset, 0, count);
}

static int rom_program(uint32_t offset, const uint8_t *data, uint32_t count) {
	return rom_flash_op(0, offset, data, count);
}

typedef int (*explicit_buy_fn)(uint8_t *buf, uint32_t size);

static int rom_explicit_buy(void) {
	explicit_buy_fn buy = (explicit_buy_fn)rom_func(ROM_EXPLICIT_BUY);
	if (!buy) {
		return -1;
	}
	uint32_t work[64];
	return buy((uint8_t *)work, sizeof(work));
}

typedef int (*sys_info_fn)(uint32_t *out, uint32_t words, uint32_t flags);

// Boot info word 1 is 0xttppbbdd; pp is the boot partition, 0xff if none.
static int rom_boot_partition(void) {
	sys_info_fn info = (sys_info_fn)rom_func(ROM_GET_SYS_INFO);
	if (!info) {
		return 0;
	}
	uint32_t buf[5];
	if (info(buf, 5, SYS_INFO_BOOT_INFO) < 0 || !(buf[0] & SYS_INFO_BOOT_INFO)) {
		return 0;
	}
	uint32_t p = (buf[1] >> 16) & 0xff;
	return p == 0xff ? 0 : (int)p;
}

typedef int (*reboot_fn)(uint32_t flags, uint32_t delay_ms, uint32_t p0, uint32_t p1);

// rom_flash_update_reboot boots xip_addr on trial. Returns only on error.
static int rom_flash_update_reboot(uint32_t xip_addr) {
	reboot_fn reboot = (reboot_fn)rom_func(ROM_REBOOT);
	if (!reboot) {
		return -1;
	}
	int rc = reboot(REBOOT_TYPE_FLASH_UPDATE | REBOOT_NO_RETURN, 1000, xip_addr, 0);
	if (rc == 0) {
		for (;;) {
			__asm__ volatile ("wfi");
		}
	}
	return rc;
}

static void watchdog_reset(void) {
	*(volatile uint32_t *)WATCHDOG_CTRL = WATCHDOG_TRIGGER;
	for (;;) {
		__asm__ volatile ("nop");
	}
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

// ROMFlash reaches the on-board flash through the bootrom. It bypasses
// machine.Flash, whose offsets are relative to the data area rather than
// the start of flash.
type ROMFlash struct{}

// EraseSector erases one sector.
func (ROMFlash) EraseSector(offset uint32) error {
	if C.rom_erase(C.uint32_t(offset), C.uint32_t(SectorSize)) != 0 {
		return ErrFlashEraseFailed
	}
	return nil
}

// Program writes data at offset.
func (ROMFlash) Program(offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if C.rom_program(C.uint32_t(offset), (*C.uint8_t)(&data[0]), C.uint32_t(len(data))) != 0 {
		return ErrFlashWriteFailed
	}
	return nil
}

// Read copies from the XIP window.
func (ROMFlash) Read(offset uint32, p []byte) error {
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(XIPBase+offset))), len(p))
	copy(p, src)
	return nil
}

// CurrentPartition returns the partition the device booted from.
func CurrentPartition() int {
	return int(C.rom_boot_partition())
}

// ConfirmPartition accepts the running image. After a trial boot the
// bootrom reverts unless this runs within 16.7s; otherwise it is a no-op.
func ConfirmPartition() error {
	if C.rom_explicit_buy() != 0 {
		return ErrConfirmFailed
	}
	return nil
}

var beforeReboot func()

// SetBeforeReboot registers fn to run before any reboot, typically to shut
// down the radio.
func SetBeforeReboot(fn func()) {
	beforeReboot = fn
}

// RebootToPartition boots partition p on trial. It returns only if the
// bootrom refused.
func RebootToPartition(p int) error {
	if beforeReboot != nil {
		beforeReboot()
	}
	if rc := C.rom_flash_update_reboot(C.uint32_t(PartitionXIPAddr(p))); rc != 0 {
		return errors.New("ota: bootrom refused flash update reboot")
	}
	return nil
}

// Reboot restarts through the watchdog.
func Reboot() {
	if beforeReboot != nil {
		beforeReboot()
	}
	C.watchdog_reset()
}
