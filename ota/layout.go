// Package ota writes firmware images into the inactive partition of the
// RP2350's A/B flash layout and boots them with the bootrom's
// try-before-you-buy support.
//
// Flash layout, as written by picotool:
//
//	0x000000  partition table (8KB)
//	0x002000  partition A (1984KB)
//	0x1F2000  partition B (1984KB)
//
// Flash operations take raw offsets from the start of flash; the bootrom
// reboot call and reads through the XIP window take XIPBase + offset.
package ota

// Partitions
const (
	PartitionA = 0
	PartitionB = 1
)

// Flash geometry
const (
	XIPBase          = 0x10000000
	PartitionAOffset = 0x2000
	PartitionBOffset = 0x1F2000
	PartitionSize    = 0x1F0000

	SectorSize = 4096 // erase block
	PageSize   = 256  // program block
)

// PartitionOffset returns the raw flash offset of partition p.
func PartitionOffset(p int) uint32 {
	if p == PartitionB {
		return PartitionBOffset
	}
	return PartitionAOffset
}

// PartitionXIPAddr returns the XIP address of partition p.
func PartitionXIPAddr(p int) uint32 {
	return XIPBase + PartitionOffset(p)
}

// TargetPartition returns the partition to write when running from current.
func TargetPartition(current int) int {
	if current == PartitionA {
		return PartitionB
	}
	return PartitionA
}

// PartitionName returns "A" or "B".
func PartitionName(p int) string {
	if p == PartitionB {
		return "B"
	}
	return "A"
}
