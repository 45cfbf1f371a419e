package faults

import (
	"fmt"

	"faultcampaign/disasm"
)

// unconditional reports whether a jump/branch mnemonic is the
// unconditional kind that inject_jump_faults routes through the JMP
// transform rather than JBE. This is the Open Question from spec.md
// §9 resolved as a proper set-membership test — the original Python
// wrote `jump['type'] == ('jmp' or 'b')`, which (or)-short-circuits to
// the literal string 'jmp' and so silently never matches ARM 'b'.
func unconditional(mnemonic string) bool {
	return mnemonic == "jmp" || mnemonic == "b"
}

// InjectJumpFaults implements inject_jump_faults: for every JumpSite,
// enumerate all 16 single-bit flips of the low 16 bits of its target
// address and, for each flip that actually changes the target,
// produce a FaultPlan that retargets the jump/branch to the new
// address. Plans whose recomputed displacement can't be represented
// in the instruction's existing displacement width are rejected
// (counted in attempted, absent from plans).
func InjectJumpFaults(sites []disasm.JumpSite, arch disasm.Arch, src []byte) (plans []FaultPlan, attempted int) {
	for _, site := range sites {
		orig := site.ToVA
		if arch == disasm.ARM {
			orig = site.ToFileOffset
		}
		for bit := 0; bit < 16; bit++ {
			attempted++
			newTarget := flipBit16(orig, bit)
			if newTarget == (orig & 0xFFFF) {
				continue
			}
			plan, ok := buildRetargetPlan(site, arch, newTarget, src)
			if !ok {
				continue
			}
			plans = append(plans, plan)
		}
	}
	return plans, attempted
}

// buildRetargetPlan computes the patch for retargeting site to
// newTarget (a 16-bit value; for x86 it is a full VA since the
// classifier only admits targets that already fit 16 bits, for ARM it
// is a file offset). JMP vs JBE only affects the plan's Category
// label — the underlying patch math is identical, matching
// spec.md §4.5.1's description of JBE as "retarget" rather than a
// semantically distinct transform.
func buildRetargetPlan(site disasm.JumpSite, arch disasm.Arch, newTarget uint64, src []byte) (FaultPlan, bool) {
	var fileOffset uint64
	var patch []byte

	switch arch {
	case disasm.ARM:
		width := 4
		if !inRange(len(src), site.FromFileOffset, width) {
			return FaultPlan{}, false
		}
		rel := int64(newTarget) - int64(site.FromFileOffset+8)
		if rel%4 != 0 {
			return FaultPlan{}, false
		}
		imm24 := rel / 4
		if !fitsSigned(imm24, 3) {
			return FaultPlan{}, false
		}
		fileOffset = site.FromFileOffset
		// imm24 occupies the low 24 bits, little endian; byte 3
		// (cond | 101 | L) is preserved from the original instruction.
		patch = make([]byte, 4)
		putLE(patch, imm24, 3)
		patch[3] = src[site.FromFileOffset+3]
	default:
		width := dispWidthForInstrSize(site.InstrSize)
		dispOffset := site.FromFileOffset + uint64(site.InstrSize-width)
		if !inRange(len(src), dispOffset, width) {
			return FaultPlan{}, false
		}
		rel := int64(newTarget) - int64(site.FromVA+uint64(site.InstrSize))
		if !fitsSigned(rel, width) {
			return FaultPlan{}, false
		}
		fileOffset = dispOffset
		patch = make([]byte, width)
		putLE(patch, rel, width)
	}

	category := "jump-jbe"
	if unconditional(site.Type) {
		category = "jump-jmp"
	}
	label := fmt.Sprintf("%s_at_%#x_from_%#x_to_%#x", site.Type, site.FromVA, currentTarget(site, arch), newTarget)
	return FaultPlan{
		Label:      label,
		FileOffset: fileOffset,
		Patch:      patch,
		Category:   category,
	}, true
}

func currentTarget(site disasm.JumpSite, arch disasm.Arch) uint64 {
	if arch == disasm.ARM {
		return site.ToFileOffset
	}
	return site.ToVA
}

// InjectFlipJeJneFaults implements inject_flip_je_jne_faults, x86
// only: for every je/jne jump, flip bit 0 of its opcode byte so short
// je (0x74) becomes jne (0x75) and vice versa.
func InjectFlipJeJneFaults(sites []disasm.JumpSite, arch disasm.Arch, src []byte) (plans []FaultPlan, attempted int) {
	if arch != disasm.X86 {
		return nil, 0
	}
	for _, site := range sites {
		if site.Type != "je" && site.Type != "jne" {
			continue
		}
		attempted++
		if !inRange(len(src), site.FromFileOffset, 1) {
			continue
		}
		orig := src[site.FromFileOffset]
		plans = append(plans, FaultPlan{
			Label:      fmt.Sprintf("flip_%s_at_%#x", site.Type, site.FromVA),
			FileOffset: site.FromFileOffset,
			Patch:      []byte{orig ^ 0x01},
			Category:   "flip",
		})
	}
	return plans, attempted
}
