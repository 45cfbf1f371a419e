package disasm

import (
	"fmt"
	"strings"

	"faultcampaign/elfscan"

	"golang.org/x/arch/arm/armasm"
)

// decodeARMSection runs the 32-bit ARM decoder over one section's
// bytes. ARM instructions are fixed 4 bytes wide; an undecodable word
// still advances the cursor by 4 so the stream stays aligned.
func decodeARMSection(sec elfscan.Section) ([]Instruction, error) {
	var out []Instruction
	data := sec.Data
	cursor := 0
	for cursor < len(data) {
		va := sec.Addr + uint64(cursor)
		size := 4
		if cursor+size > len(data) {
			size = len(data) - cursor
		}
		if size < 4 {
			// trailing partial word: record as data, stop decoding
			out = append(out, Instruction{
				VA:         va,
				FileOffset: fileOffsetFor(sec, va),
				Size:       size,
				Mnemonic:   "(bad)",
				Raw:        data[cursor : cursor+size],
			})
			break
		}

		inst, err := armasm.Decode(data[cursor:cursor+4], armasm.ModeARM)
		rec := Instruction{
			VA:         va,
			FileOffset: fileOffsetFor(sec, va),
			Size:       4,
			Raw:        data[cursor : cursor+4],
		}
		if err == nil && inst.Op != 0 {
			// armasm names conditional ops with a dotted suffix
			// ("B.NE"); dropping the dot gives the plain names
			// ("bne") that armBranches and armValueSite match on.
			rec.Mnemonic = strings.ToLower(strings.ReplaceAll(inst.Op.String(), ".", ""))
			if target, ok := armBranchTarget(inst, va); ok {
				rec.HasJumpTarget = true
				rec.JumpTargetVA = target
				// Mirrors the original tool: the same section-wide
				// va->file-offset adjustment is applied to the
				// target regardless of which section it actually
				// falls in.
				rec.JumpTargetFileOffset = fileOffsetFor(sec, target)
				rec.OperandText = armBranchOperandText(target)
			}
			if width, ok := armValueSite(inst, rec.Mnemonic); ok {
				rec.ValueWidth = width
				rec.ValueImmFileOffset = rec.FileOffset
			}
		} else {
			rec.Mnemonic = "(bad)"
		}
		out = append(out, rec)
		cursor += 4
	}
	return out, nil
}

// armBranchTarget resolves a branch/call instruction's target address
// from its PC-relative operand. armasm represents this operand as a
// PCRel byte offset from the instruction's own address, the ARM
// analogue of x86asm's Rel.
func armBranchTarget(inst armasm.Inst, va uint64) (uint64, bool) {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if rel, ok := a.(armasm.PCRel); ok {
			return uint64(int64(va) + int64(rel)), true
		}
	}
	return 0, false
}

func armBranchOperandText(target uint64) string {
	return fmt.Sprintf("#0x%x", target)
}

// armValueSite reports the zeroing width for a cmp/mov instruction
// whose final operand is a non-zero immediate. ARM's literal pool
// immediates only ever need byte or halfword zeroing here (the
// original tool never derives a word-sized ARM value site), so widths
// above 2 bytes are reported as not-a-candidate.
func armValueSite(inst armasm.Inst, mnemonic string) (width int, ok bool) {
	if mnemonic != "cmp" && mnemonic != "mov" {
		return 0, false
	}
	var imm armasm.Imm
	found := false
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if v, ok := a.(armasm.Imm); ok {
			imm = v
			found = true
		}
	}
	if !found || imm == 0 {
		return 0, false
	}
	switch {
	case uint32(imm) <= 0xFF:
		return 1, true
	case uint32(imm) <= 0xFFFF:
		return 2, true
	default:
		return 0, false
	}
}
