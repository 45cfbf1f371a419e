package faults

import (
	"fmt"

	"faultcampaign/disasm"
)

// InjectFlpFaults implements inject_flp_faults: for every decoded
// instruction, for every byte offset within it and every bit
// significance 0..7, flip that single bit.
//
// This resolves the third Open Question from spec.md §9: the
// original's `range(0, size)` is byte-granular over a half-open
// range, so the loop below visits byte offsets [0, size) — never the
// out-of-range size-th byte.
func InjectFlpFaults(all []disasm.InstrRef, src []byte) (plans []FaultPlan, attempted int) {
	for _, ref := range all {
		for off := 0; off < ref.Size; off++ {
			loc := ref.FileOffset + uint64(off)
			for bit := 0; bit < 8; bit++ {
				attempted++
				if !inRange(len(src), loc, 1) {
					continue
				}
				orig := src[loc]
				plans = append(plans, FaultPlan{
					Label:      fmt.Sprintf("flp_at_%#x_sgnf_%d", loc, bit),
					FileOffset: loc,
					Patch:      []byte{orig ^ (1 << uint(bit))},
					Category:   "flp",
				})
			}
		}
	}
	return plans, attempted
}
