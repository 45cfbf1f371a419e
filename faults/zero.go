package faults

import (
	"fmt"

	"faultcampaign/disasm"
)

// InjectZeroFaults implements inject_zero_faults: for every
// ValueSite, overwrite its immediate operand with zero bytes — one
// byte for width 1 (Z1B), width bytes for width 2 or 4 (Z1W).
func InjectZeroFaults(sites []disasm.ValueSite, srcLen int) (plans []FaultPlan, attempted int) {
	for _, site := range sites {
		attempted++
		if !inRange(srcLen, site.ImmFileOffset, site.Width) {
			continue
		}
		plans = append(plans, FaultPlan{
			Label:      fmt.Sprintf("%s_at_%#x_zeroed", site.Mnemonic, site.ImmFileOffset),
			FileOffset: site.ImmFileOffset,
			Patch:      make([]byte, site.Width),
			Category:   "zero",
		})
	}
	return plans, attempted
}
