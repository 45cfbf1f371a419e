// Package testelf builds minimal, valid ELF32 images in memory so
// that elfscan/disasm tests can exercise real
// debug/elf parsing instead of hand-rolled fixtures.
package testelf

import (
	"bytes"
	"encoding/binary"
)

// Sec describes one section to bake into a synthetic ELF image.
type Sec struct {
	Name   string
	Addr   uint32
	Offset uint32 // if zero, computed sequentially after the header
	Data   []byte
}

const (
	ehdrSize = 52
	shdrSize = 40
)

// BuildX86 returns a minimal little-endian, 32-bit ELF image
// (EM_386) containing exactly the given sections in order, each as
// SHT_PROGBITS, plus a null section and a trailing .shstrtab.
func BuildX86(secs []Sec) []byte {
	return build(secs, 3 /* EM_386 */)
}

// BuildARM returns the ARM (EM_ARM) equivalent of BuildX86.
func BuildARM(secs []Sec) []byte {
	return build(secs, 40 /* EM_ARM */)
}

func build(secs []Sec, machine uint16) []byte {
	var names bytes.Buffer
	names.WriteByte(0) // index 0 is the empty string

	nameOff := make([]uint32, len(secs))
	for i, s := range secs {
		nameOff[i] = uint32(names.Len())
		names.WriteString(s.Name)
		names.WriteByte(0)
	}
	shstrtabNameOff := uint32(names.Len())
	names.WriteString(".shstrtab")
	names.WriteByte(0)

	// Lay out file content: header, then each section's bytes in
	// order, then the string table.
	cursor := uint32(ehdrSize)
	offsets := make([]uint32, len(secs))
	for i, s := range secs {
		off := s.Offset
		if off == 0 {
			off = cursor
		}
		offsets[i] = off
		end := off + uint32(len(s.Data))
		if end > cursor {
			cursor = end
		}
	}
	shstrtabOffset := cursor
	cursor += uint32(names.Len())

	// Section header table follows all section data, 4-byte aligned.
	if cursor%4 != 0 {
		cursor += 4 - cursor%4
	}
	shoff := cursor

	numSections := 1 + len(secs) + 1 // null + secs + shstrtab

	var buf bytes.Buffer
	buf.Grow(int(shoff) + numSections*shdrSize)

	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 1 /*ELFCLASS32*/, 1 /*ELFDATA2LSB*/, 1 /*EV_CURRENT*/, 0})
	buf.Write(make([]byte, 8)) // padding

	le := binary.LittleEndian
	writeU16 := func(v uint16) { var b [2]byte; le.PutUint16(b[:], v); buf.Write(b[:]) }
	writeU32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }

	writeU16(2)       // e_type = ET_EXEC
	writeU16(machine) // e_machine
	writeU32(1)       // e_version
	writeU32(0)       // e_entry
	writeU32(0)       // e_phoff
	writeU32(shoff)   // e_shoff
	writeU32(0)       // e_flags
	writeU16(ehdrSize)
	writeU16(0) // e_phentsize
	writeU16(0) // e_phnum
	writeU16(shdrSize)
	writeU16(uint16(numSections))
	writeU16(uint16(numSections - 1)) // e_shstrndx: last section

	// section data, in file-offset order as declared by the caller
	for i, s := range secs {
		if pad := int(offsets[i]) - buf.Len(); pad > 0 {
			buf.Write(make([]byte, pad))
		}
		buf.Write(s.Data)
	}
	// pad up to shstrtabOffset if the last section left a gap
	if buf.Len() < int(shstrtabOffset) {
		buf.Write(make([]byte, int(shstrtabOffset)-buf.Len()))
	}
	buf.Write(names.Bytes())
	if buf.Len() < int(shoff) {
		buf.Write(make([]byte, int(shoff)-buf.Len()))
	}

	// section headers: null, then each caller section, then shstrtab
	writeShdr := func(nameOff, typ, flags, addr, offset, size, link, info, align, entsize uint32) {
		writeU32(nameOff)
		writeU32(typ)
		writeU32(flags)
		writeU32(addr)
		writeU32(offset)
		writeU32(size)
		writeU32(link)
		writeU32(info)
		writeU32(align)
		writeU32(entsize)
	}

	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0) // SHT_NULL
	for i, s := range secs {
		writeShdr(nameOff[i], 1 /*SHT_PROGBITS*/, 2 /*SHF_ALLOC*/, s.Addr, offsets[i], uint32(len(s.Data)), 0, 0, 1, 0)
	}
	writeShdr(shstrtabNameOff, 3 /*SHT_STRTAB*/, 0, 0, shstrtabOffset, uint32(names.Len()), 0, 0, 1, 0)

	return buf.Bytes()
}
