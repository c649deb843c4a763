package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// UF2 block layout (512 bytes):
//
//	0-3:     magic 1 (0x0A324655 "UF2\n")
//	4-7:     magic 2 (0x9E5D5157)
//	8-11:    flags
//	12-15:   target address
//	16-19:   payload size (typically 256)
//	20-23:   block number
//	24-27:   total blocks
//	28-31:   file size or family ID (depends on flags)
//	32-507:  data (476 bytes max)
//	508-511: magic 3 (0x0AB16F30)
const (
	uf2BlockSize  = 512
	uf2Magic1     = 0x0A324655
	uf2Magic2     = 0x9E5D5157
	uf2Magic3     = 0x0AB16F30
	uf2MaxPayload = 476
	uf2MaxImage   = 4 * 1024 * 1024
)

// UF2 flags
const (
	uf2NotMainFlash    = 0x00000001
	uf2FileContainer   = 0x00001000
	uf2FamilyIDPresent = 0x00002000
	uf2MD5Present      = 0x00004000
	uf2ExtensionTags   = 0x00008000
)

var (
	errUF2TooSmall = errors.New("file too small to be UF2")
	errUF2Size     = errors.New("UF2 file size not multiple of 512")
	errUF2Magic    = errors.New("not a valid UF2 file (bad magic)")
)

func validBlock(block []byte) bool {
	return binary.LittleEndian.Uint32(block[0:4]) == uf2Magic1 &&
		binary.LittleEndian.Uint32(block[4:8]) == uf2Magic2 &&
		binary.LittleEndian.Uint32(block[508:512]) == uf2Magic3
}

// isUF2 reports whether data starts with a UF2 block.
func isUF2(data []byte) bool {
	return len(data) >= uf2BlockSize && validBlock(data[:uf2BlockSize])
}

// extractUF2Binary extracts the raw flash image from a UF2 container. Gaps
// between blocks read as erased flash (0xFF).
func extractUF2Binary(uf2Data []byte) ([]byte, error) {
	if len(uf2Data) < uf2BlockSize {
		return nil, errUF2TooSmall
	}
	if len(uf2Data)%uf2BlockSize != 0 {
		return nil, errUF2Size
	}
	numBlocks := len(uf2Data) / uf2BlockSize

	// First pass: find the address range
	var minAddr, maxAddr uint32 = 0xFFFFFFFF, 0
	for i := 0; i < numBlocks; i++ {
		block := uf2Data[i*uf2BlockSize : (i+1)*uf2BlockSize]
		if !validBlock(block) {
			return nil, fmt.Errorf("block %d: invalid magic", i)
		}
		if binary.LittleEndian.Uint32(block[8:12])&uf2NotMainFlash != 0 {
			continue
		}

		targetAddr := binary.LittleEndian.Uint32(block[12:16])
		payloadSize := min(binary.LittleEndian.Uint32(block[16:20]), uf2MaxPayload)
		minAddr = min(minAddr, targetAddr)
		maxAddr = max(maxAddr, targetAddr+payloadSize)
	}
	if maxAddr <= minAddr {
		return nil, errors.New("UF2 file has no flash payload")
	}

	outputSize := maxAddr - minAddr
	if outputSize > uf2MaxImage {
		return nil, fmt.Errorf("extracted binary too large: %d bytes", outputSize)
	}
	output := make([]byte, outputSize)
	for i := range output {
		output[i] = 0xFF
	}

	// Second pass: copy payloads to correct offsets
	for i := 0; i < numBlocks; i++ {
		block := uf2Data[i*uf2BlockSize : (i+1)*uf2BlockSize]
		if binary.LittleEndian.Uint32(block[8:12])&uf2NotMainFlash != 0 {
			continue
		}
		targetAddr := binary.LittleEndian.Uint32(block[12:16])
		payloadSize := min(binary.LittleEndian.Uint32(block[16:20]), uf2MaxPayload)

		offset := targetAddr - minAddr
		copy(output[offset:offset+payloadSize], block[32:32+payloadSize])
	}
	return output, nil
}

// familyName names the RP family IDs.
func familyName(id uint32) string {
	switch id {
	case 0xe48bff56:
		return "RP2040"
	case 0xe48bff57:
		return "RP2350 ARM-S"
	case 0xe48bff58:
		return "RP2350 ARM-NS"
	case 0xe48bff59:
		return "RP2350 RISC-V"
	default:
		return "unknown"
	}
}

// readFirmwareInfo writes a description of the UF2 file at path to w.
func readFirmwareInfo(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	fileSize := stat.Size()

	block := make([]byte, uf2BlockSize)
	if _, err := io.ReadFull(f, block); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return errUF2TooSmall
		}
		return err
	}
	if !validBlock(block) {
		return errUF2Magic
	}

	flags := binary.LittleEndian.Uint32(block[8:12])
	targetAddr := binary.LittleEndian.Uint32(block[12:16])
	payloadSize := binary.LittleEndian.Uint32(block[16:20])
	numBlocks := binary.LittleEndian.Uint32(block[24:28])
	familyID := binary.LittleEndian.Uint32(block[28:32])

	fmt.Fprintf(w, "UF2 File: %s\n", path)
	fmt.Fprintf(w, "  File size: %d bytes (%d KB)\n", fileSize, fileSize/1024)
	fmt.Fprintf(w, "  Blocks: %d (block 0 shown)\n", numBlocks)
	fmt.Fprintf(w, "  Target address: 0x%08x\n", targetAddr)
	fmt.Fprintf(w, "  Payload per block: %d bytes\n", payloadSize)
	fmt.Fprintf(w, "  Flags: 0x%08x\n", flags)

	for _, fl := range []struct {
		bit  uint32
		name string
	}{
		{uf2NotMainFlash, "NOT_MAIN_FLASH"},
		{uf2FileContainer, "FILE_CONTAINER"},
		{uf2FamilyIDPresent, "FAMILY_ID_PRESENT"},
		{uf2MD5Present, "MD5_CHECKSUM_PRESENT"},
		{uf2ExtensionTags, "EXTENSION_TAGS_PRESENT"},
	} {
		if flags&fl.bit != 0 {
			fmt.Fprintf(w, "    - %s\n", fl.name)
		}
	}

	if flags&uf2FamilyIDPresent != 0 {
		fmt.Fprintf(w, "  Family ID: 0x%08x (%s)\n", familyID, familyName(familyID))
	}

	fwSize := uint64(numBlocks) * uint64(payloadSize)
	fmt.Fprintf(w, "  Firmware size: ~%d bytes (%d KB)\n", fwSize, fwSize/1024)
	return nil
}
