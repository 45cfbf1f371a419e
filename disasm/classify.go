package disasm

// InstrRef is a lightweight pointer into the binary: a byte range
// that AllInstr tracks so fault models can address any decoded
// instruction by its file position.
type InstrRef struct {
	FileOffset uint64
	Size       int
}

// JumpSite is a direct jump/branch whose target is a resolvable
// immediate address.
type JumpSite struct {
	Type           string // mnemonic, e.g. "jmp", "bne"
	FromVA         uint64
	ToVA           uint64
	FromFileOffset uint64
	ToFileOffset   uint64 // ARM only; 0 for x86 (spec records VA there)
	InstrSize      int    // size in bytes of the jump/branch instruction itself
}

// ValueSite is a cmp/mov instruction with a literal immediate operand
// of known width, eligible for zeroing.
type ValueSite struct {
	Mnemonic      string
	Width         int // 1, 2, or 4
	ImmFileOffset uint64
	InstrOffset   uint64
	InstrSize     int
}

// x86Jumps is the fixed set of x86 mnemonics considered direct jumps,
// exactly as enumerated in the original tool.
var x86Jumps = map[string]bool{
	"jne": true, "je": true, "jbe": true, "jae": true, "jb": true, "jo": true,
	"jmp": true, "ja": true, "jle": true, "js": true, "jc": true, "jcxz": true,
	"jecxz": true, "jrcxz": true, "jg": true, "jge": true, "jl": true, "jna": true,
	"jnae": true, "jnbe": true, "jnc": true, "jng": true, "jnge": true, "jnl": true,
	"jnle": true, "jno": true, "jnp": true, "jns": true, "jnz": true, "jp": true,
	"jpe": true, "jpo": true, "jz": true,
}

// armBranches is the fixed set of ARM branch mnemonics.
var armBranches = map[string]bool{
	"b": true, "beq": true, "bne": true, "bcs": true, "bhs": true, "bcc": true,
	"blo": true, "bmi": true, "bpl": true, "bvs": true, "bvc": true, "bhi": true,
	"bls": true, "bge": true, "blt": true, "bgt": true, "ble": true, "bl": true,
	"bleq": true, "bllt": true, "blx": true, "bx": true, "bxeq": true, "bxne": true,
	"bxcs": true, "bxcc": true, "bxhi": true, "bxls": true, "bxgt": true, "bxle": true,
}

// Classify walks instrs (already in section-selection order) and
// produces the three parallel lists the planner consumes.
func Classify(instrs []Instruction, arch Arch) (all []InstrRef, jumps []JumpSite, values []ValueSite) {
	all = make([]InstrRef, 0, len(instrs))
	for _, in := range instrs {
		all = append(all, InstrRef{FileOffset: in.FileOffset, Size: in.Size})

		if in.ValueWidth > 0 {
			values = append(values, ValueSite{
				Mnemonic:      in.Mnemonic,
				Width:         in.ValueWidth,
				ImmFileOffset: in.ValueImmFileOffset,
				InstrOffset:   in.FileOffset,
				InstrSize:     in.Size,
			})
		}

		if !in.HasJumpTarget {
			continue
		}

		switch arch {
		case X86:
			if !x86Jumps[in.Mnemonic] {
				continue
			}
			// Only short, 16-bit-addressed direct jumps: the
			// rendered target must be exactly "0xNNNN" (6 chars).
			if len(in.OperandText) != 6 {
				continue
			}
			jumps = append(jumps, JumpSite{
				Type:           in.Mnemonic,
				FromVA:         in.VA,
				ToVA:           in.JumpTargetVA,
				FromFileOffset: in.FileOffset,
				InstrSize:      in.Size,
			})
		case ARM:
			if !armBranches[in.Mnemonic] {
				continue
			}
			if len(in.OperandText) == 0 {
				continue
			}
			jumps = append(jumps, JumpSite{
				Type:           in.Mnemonic,
				FromVA:         in.VA,
				ToVA:           in.JumpTargetVA,
				FromFileOffset: in.FileOffset,
				ToFileOffset:   in.JumpTargetFileOffset,
				InstrSize:      in.Size,
			})
		}
	}
	return all, jumps, values
}
