package faults

import (
	"fmt"

	"faultcampaign/disasm"
)

// InjectNopFaults implements inject_nop_faults: for every decoded
// instruction, overwrite its entire byte range with the
// architecture's NOP encoding, repeated to fill the instruction's
// size.
func InjectNopFaults(all []disasm.InstrRef, arch disasm.Arch, srcLen int) (plans []FaultPlan, attempted int) {
	nopByte := archNOP(arch)
	for _, ref := range all {
		attempted++
		if !inRange(srcLen, ref.FileOffset, ref.Size) {
			continue
		}
		patch := make([]byte, ref.Size)
		for i := range patch {
			patch[i] = nopByte[i%len(nopByte)]
		}
		hi := ref.FileOffset + uint64(ref.Size) - 1
		plans = append(plans, FaultPlan{
			Label:      fmt.Sprintf("nop_%#x-%#x", ref.FileOffset, hi),
			FileOffset: ref.FileOffset,
			Patch:      patch,
			Category:   "nop",
		})
	}
	return plans, attempted
}
