package faults_test

import (
	"math/bits"
	"testing"

	"faultcampaign/disasm"
	"faultcampaign/faults"
)

// x86NearJumpSrc builds the 5-byte source for `jmp 0x1000` at file
// offset 0x100 (offset == va here): E9 rel32.
func x86NearJumpSrc() ([]byte, disasm.JumpSite) {
	const va, target = 0x100, 0x1000
	rel := int32(target - (va + 5))
	src := make([]byte, va+5+0x10)
	src[va] = 0xE9
	src[va+1] = byte(rel)
	src[va+2] = byte(rel >> 8)
	src[va+3] = byte(rel >> 16)
	src[va+4] = byte(rel >> 24)
	return src, disasm.JumpSite{
		Type:           "jmp",
		FromVA:         va,
		ToVA:           target,
		FromFileOffset: va,
		InstrSize:      5,
	}
}

func TestInjectJumpFaultsRetargetsByExactlyOneBit(t *testing.T) {
	src, site := x86NearJumpSrc()
	plans, attempted := faults.InjectJumpFaults([]disasm.JumpSite{site}, disasm.X86, src)
	if attempted != 16 {
		t.Fatalf("attempted = %d, want 16", attempted)
	}
	if len(plans) == 0 {
		t.Fatalf("no plans produced")
	}
	for _, p := range plans {
		mutated := append([]byte(nil), src...)
		copy(mutated[p.FileOffset:], p.Patch)

		diffs := 0
		for i := range src {
			if src[i] != mutated[i] {
				diffs++
			}
		}
		if diffs == 0 {
			t.Fatalf("plan %s made no change", p.Label)
		}

		// Decode the patched rel32 and check that the new target
		// differs from the original in exactly one bit.
		d := mutated[site.FromFileOffset+1 : site.FromFileOffset+5]
		rel := int32(uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24)
		newTarget := uint32(int32(site.FromVA+5) + rel)
		if bits.OnesCount32(newTarget^uint32(site.ToVA)) != 1 {
			t.Fatalf("plan %s retargets to %#x, want exactly one bit away from %#x", p.Label, newTarget, site.ToVA)
		}
	}
}

func TestInjectJumpFaultsRejectsOutOfRange(t *testing.T) {
	site := disasm.JumpSite{
		Type:           "jmp",
		FromVA:         0x100,
		ToVA:           0x1000,
		FromFileOffset: 0x100,
		InstrSize:      5,
	}
	// Source too short to contain the instruction at all.
	src := make([]byte, 4)
	plans, attempted := faults.InjectJumpFaults([]disasm.JumpSite{site}, disasm.X86, src)
	if attempted != 16 {
		t.Fatalf("attempted = %d, want 16", attempted)
	}
	if len(plans) != 0 {
		t.Fatalf("got %d plans, want 0 (all out of range)", len(plans))
	}
}

func TestInjectFlipJeJneFaults(t *testing.T) {
	// je rel8: 0x74 0x10 at file offset 0x200.
	src := make([]byte, 0x210)
	src[0x200] = 0x74
	src[0x201] = 0x10
	site := disasm.JumpSite{Type: "je", FromVA: 0x200, FromFileOffset: 0x200, InstrSize: 2}

	plans, attempted := faults.InjectFlipJeJneFaults([]disasm.JumpSite{site}, disasm.X86, src)
	if attempted != 1 {
		t.Fatalf("attempted = %d, want 1", attempted)
	}
	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}
	p := plans[0]
	if p.FileOffset != 0x200 {
		t.Fatalf("FileOffset = %#x, want 0x200", p.FileOffset)
	}
	if len(p.Patch) != 1 || p.Patch[0] != 0x75 {
		t.Fatalf("Patch = %#v, want [0x75]", p.Patch)
	}
	if p.Patch[0]^src[0x200] != 0x01 {
		t.Fatalf("patched byte differs from original by more than bit 0")
	}
	wantLabel := "flip_je_at_0x200"
	if p.Label != wantLabel {
		t.Fatalf("Label = %q, want %q", p.Label, wantLabel)
	}
}

func TestInjectFlipJeJneFaultsARMSkipped(t *testing.T) {
	plans, attempted := faults.InjectFlipJeJneFaults(nil, disasm.ARM, nil)
	if plans != nil || attempted != 0 {
		t.Fatalf("ARM should produce nothing, got plans=%v attempted=%d", plans, attempted)
	}
}

func TestInjectZeroFaultsByteWidth(t *testing.T) {
	src := make([]byte, 0x10)
	src[0x5] = 0xFF
	site := disasm.ValueSite{Mnemonic: "cmp", Width: 1, ImmFileOffset: 0x5, InstrOffset: 0x0, InstrSize: 6}

	plans, attempted := faults.InjectZeroFaults([]disasm.ValueSite{site}, len(src))
	if attempted != 1 || len(plans) != 1 {
		t.Fatalf("attempted=%d plans=%d, want 1,1", attempted, len(plans))
	}
	p := plans[0]
	if len(p.Patch) != 1 || p.Patch[0] != 0 {
		t.Fatalf("Patch = %#v, want single zero byte", p.Patch)
	}
	if p.Label != "cmp_at_0x5_zeroed" {
		t.Fatalf("Label = %q", p.Label)
	}
}

func TestInjectZeroFaultsDwordWidth(t *testing.T) {
	// mov dword ptr [ebp-4], 0x11223344, size 7, at va 0x300.
	site := disasm.ValueSite{Mnemonic: "mov", Width: 4, ImmFileOffset: 0x300 + 3, InstrOffset: 0x300, InstrSize: 7}
	plans, _ := faults.InjectZeroFaults([]disasm.ValueSite{site}, 0x400)
	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}
	if plans[0].FileOffset != 0x303 || len(plans[0].Patch) != 4 {
		t.Fatalf("unexpected plan: %+v", plans[0])
	}
}

func TestInjectNopFaultsFillsInstructionRange(t *testing.T) {
	ref := disasm.InstrRef{FileOffset: 0x10, Size: 3}
	plans, attempted := faults.InjectNopFaults([]disasm.InstrRef{ref}, disasm.X86, 0x20)
	if attempted != 1 || len(plans) != 1 {
		t.Fatalf("attempted=%d plans=%d", attempted, len(plans))
	}
	p := plans[0]
	if len(p.Patch) != 3 {
		t.Fatalf("Patch len = %d, want 3", len(p.Patch))
	}
	for _, b := range p.Patch {
		if b != 0x90 {
			t.Fatalf("Patch = %#v, want all 0x90", p.Patch)
		}
	}
	if p.Label != "nop_0x10-0x12" {
		t.Fatalf("Label = %q, want nop_0x10-0x12", p.Label)
	}
}

func TestInjectNopFaultsARMWholeWord(t *testing.T) {
	ref := disasm.InstrRef{FileOffset: 0x10, Size: 4}
	plans, _ := faults.InjectNopFaults([]disasm.InstrRef{ref}, disasm.ARM, 0x20)
	want := []byte{0x00, 0x00, 0xA0, 0xE1}
	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}
	for i, b := range plans[0].Patch {
		if b != want[i] {
			t.Fatalf("Patch = %#v, want %#v", plans[0].Patch, want)
		}
	}
}

func TestInjectFlpFaultsCoversEveryBitOfEveryByte(t *testing.T) {
	ref := disasm.InstrRef{FileOffset: 0x10, Size: 2}
	src := make([]byte, 0x20)
	src[0x10] = 0xAA
	src[0x11] = 0x55

	plans, attempted := faults.InjectFlpFaults([]disasm.InstrRef{ref}, src)
	if attempted != 16 {
		t.Fatalf("attempted = %d, want 16", attempted)
	}
	if len(plans) != 16 {
		t.Fatalf("got %d plans, want 16", len(plans))
	}
	for _, p := range plans {
		if p.FileOffset != 0x10 && p.FileOffset != 0x11 {
			t.Fatalf("unexpected offset %#x", p.FileOffset)
		}
		orig := src[p.FileOffset]
		if p.Patch[0]^orig == 0 {
			t.Fatalf("plan %s did not flip any bit", p.Label)
		}
	}
}

func TestInjectFlpFaultsHalfOpenRange(t *testing.T) {
	// size 1: only byte offset 0 visited, never offset 1 (the Open
	// Question resolution: range is [0, size), not [0, size]).
	ref := disasm.InstrRef{FileOffset: 0x10, Size: 1}
	src := make([]byte, 0x20)
	plans, attempted := faults.InjectFlpFaults([]disasm.InstrRef{ref}, src)
	if attempted != 8 {
		t.Fatalf("attempted = %d, want 8", attempted)
	}
	for _, p := range plans {
		if p.FileOffset != 0x10 {
			t.Fatalf("plan touched offset %#x, want only 0x10", p.FileOffset)
		}
	}
	_ = plans
}
