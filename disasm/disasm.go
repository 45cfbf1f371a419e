// Package disasm turns the byte content of ELF sections into a
// stream of decoded instructions, architecture-specific but exposed
// through one common Instruction shape, the way the original tool's
// capstone bindings did for x86 and ARM alike.
package disasm

import (
	"faultcampaign/elfscan"

	"github.com/pkg/errors"
)

// Arch selects the instruction set the byte stream is decoded as.
type Arch int

const (
	X86 Arch = iota
	ARM
)

func (a Arch) String() string {
	if a == ARM {
		return "arm"
	}
	return "x86"
}

// Instruction is one decoded instruction, addresses expressed both as
// virtual address (as reported by the disassembler) and file offset
// (where the bytes actually live in the ELF).
type Instruction struct {
	VA          uint64
	FileOffset  uint64
	Size        int
	Mnemonic    string // lowercase, e.g. "jne", "cmp", "mov"
	OperandText string // rendered jump target ("0xNNNN" x86, "#0xNNNN" ARM); set only with HasJumpTarget, filtered on by Classify
	LastIsReg   bool   // x86 only: whether the final operand is a register
	Raw         []byte

	// HasJumpTarget and JumpTargetVA are populated by the adapter when
	// the instruction has a resolvable direct branch/jump target.
	// JumpTargetFileOffset additionally carries the file-offset form
	// of the target (ARM only; the ARM adapter records jumps by file
	// offset rather than virtual address).
	HasJumpTarget        bool
	JumpTargetVA         uint64
	JumpTargetFileOffset uint64

	// ValueWidth (0 when absent) and ValueImmFileOffset are populated
	// by the adapter when the instruction is a cmp/mov-with-immediate
	// candidate for zeroing.
	ValueWidth         int
	ValueImmFileOffset uint64
}

// Decode disassembles every byte of every section in secs, in order,
// using the adapter selected by arch. secs is expected to already be
// the output of elfscan.Select — Decode does no section filtering of
// its own.
func Decode(secs []elfscan.Section, arch Arch) ([]Instruction, error) {
	var out []Instruction
	for _, sec := range secs {
		var (
			insts []Instruction
			err   error
		)
		switch arch {
		case X86:
			insts, err = decodeX86Section(sec)
		case ARM:
			insts, err = decodeARMSection(sec)
		default:
			return nil, errors.Errorf("disasm: unknown architecture %v", arch)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "disasm: decode section %s", sec.Name)
		}
		out = append(out, insts...)
	}
	return out, nil
}

// fileOffsetFor converts a virtual address within sec to its position
// in the ELF file: file_offset(i) = va - (section.va - section.file_offset).
func fileOffsetFor(sec elfscan.Section, va uint64) uint64 {
	return va - (sec.Addr - sec.Offset)
}
