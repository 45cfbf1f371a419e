package disasm

import (
	"fmt"
	"strings"

	"faultcampaign/elfscan"

	"golang.org/x/arch/x86/x86asm"
)

// decodeX86Section runs the 32-bit x86 decoder over one section's
// bytes, starting from its virtual address. An undecodable byte is
// emitted as a synthetic one-byte instruction named "(bad)" so the
// cursor always advances and the byte still shows up in AllInstr.
func decodeX86Section(sec elfscan.Section) ([]Instruction, error) {
	var out []Instruction
	data := sec.Data
	cursor := 0
	for cursor < len(data) {
		va := sec.Addr + uint64(cursor)
		inst, err := x86asm.Decode(data[cursor:], 32)
		size := inst.Len
		if err != nil || size == 0 {
			size = 1
		}
		if cursor+size > len(data) {
			size = len(data) - cursor
		}

		rec := Instruction{
			VA:         va,
			FileOffset: fileOffsetFor(sec, va),
			Size:       size,
			Raw:        data[cursor : cursor+size],
		}
		if err == nil && inst.Op != 0 {
			rec.Mnemonic = strings.ToLower(inst.Op.String())
			rec.LastIsReg = x86LastArgIsReg(inst)

			if target, ok := x86JumpTarget(inst, va); ok {
				rec.HasJumpTarget = true
				rec.JumpTargetVA = target
				rec.OperandText = fmt.Sprintf("0x%x", target)
			}
			if width, immOff, ok := x86ValueSite(inst, rec.Mnemonic, rec.FileOffset, rec.Size); ok {
				rec.ValueWidth = width
				rec.ValueImmFileOffset = immOff
			}
		} else {
			rec.Mnemonic = "(bad)"
		}
		out = append(out, rec)

		cursor += size
	}
	return out, nil
}

func x86ArgCount(inst x86asm.Inst) int {
	n := 0
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		n++
	}
	return n
}

func x86LastArg(inst x86asm.Inst) x86asm.Arg {
	n := x86ArgCount(inst)
	if n == 0 {
		return nil
	}
	return inst.Args[n-1]
}

func x86LastArgIsReg(inst x86asm.Inst) bool {
	_, ok := x86LastArg(inst).(x86asm.Reg)
	return ok
}

// x86JumpTarget resolves a direct jump/branch's absolute target
// address from its PC-relative immediate operand.
func x86JumpTarget(inst x86asm.Inst, pc uint64) (uint64, bool) {
	rel, ok := x86LastArg(inst).(x86asm.Rel)
	if !ok {
		return 0, false
	}
	target := int64(pc) + int64(inst.Len) + int64(rel)
	return uint64(target), true
}

// x86ValueSite reports the width and immediate file offset for a
// cmp/mov instruction whose final operand is a non-zero immediate and
// whose destination is a memory operand carrying an explicit access
// width (the decoder's MemBytes, standing in for the literal
// byte/word/dword keyword spec.md §4.4 derives a width from) of 1, 2
// or 4 bytes. A register destination carries no such keyword — the
// original tool's `op_str` has no byte/word/dword token for it either
// — so it returns ok=false, same as any other case where no operand
// size can be determined at all (spec's "value-size classifier leaves
// size uninitialised" case, resolved here as "emit no ValueSite").
func x86ValueSite(inst x86asm.Inst, mnemonic string, instrFileOffset uint64, instrSize int) (width int, immFileOffset uint64, ok bool) {
	if mnemonic != "cmp" && mnemonic != "mov" {
		return 0, 0, false
	}
	imm, isImm := x86LastArg(inst).(x86asm.Imm)
	if !isImm || imm == 0 {
		return 0, 0, false
	}

	if _, isMem := inst.Args[0].(x86asm.Mem); !isMem {
		return 0, 0, false
	}
	width = inst.MemBytes
	if width != 1 && width != 2 && width != 4 {
		return 0, 0, false
	}

	immFileOffset = instrFileOffset + uint64(instrSize-width)
	return width, immFileOffset, true
}
