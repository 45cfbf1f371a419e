// Package materialize turns FaultPlans into on-disk mutated binary
// copies: one file per accepted plan, each a byte-identical copy of
// the source except for the patched range.
package materialize

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"faultcampaign/faults"
)

// ErrMaterialiseIO wraps any I/O failure while materialising a single
// plan. It is fatal for that plan only — Materialize keeps going.
var ErrMaterialiseIO = errors.New("materialize: io error")

// MutatedBinary is one materialised on-disk variant.
type MutatedBinary struct {
	Path string
	Plan faults.FaultPlan
}

// Prepare wipes outDir (if present) and recreates it empty, matching
// the campaign's process-wide "clean output directory" invariant.
func Prepare(outDir string) error {
	if err := os.RemoveAll(outDir); err != nil {
		return errors.Wrap(err, "materialize: wipe output directory")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "materialize: create output directory")
	}
	return nil
}

// Materialize copies srcPath to outDir/<plan.Label> for every plan in
// plans and applies that plan's patch at its FileOffset. A per-plan
// I/O error is recorded against that plan and skipped; materialisation
// continues for the rest. Partial output files are left on disk, as
// spec.md's MaterialiseIOError handling requires.
func Materialize(srcPath, outDir string, plans []faults.FaultPlan) (out []MutatedBinary, errs []error) {
	for _, plan := range plans {
		outPath := filepath.Join(outDir, plan.Label)
		if err := copyFile(srcPath, outPath); err != nil {
			errs = append(errs, errors.Wrapf(ErrMaterialiseIO, "%s: copy: %v", plan.Label, err))
			continue
		}
		if err := applyPatch(outPath, plan); err != nil {
			errs = append(errs, errors.Wrapf(ErrMaterialiseIO, "%s: patch: %v", plan.Label, err))
			continue
		}
		out = append(out, MutatedBinary{Path: outPath, Plan: plan})
	}
	return out, errs
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode()|0o100)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}

// applyPatch opens outPath read-write for exactly the duration of
// this one patch, matching the materialisation contract's file-handle
// ownership rule.
func applyPatch(outPath string, plan faults.FaultPlan) error {
	f, err := os.OpenFile(outPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if plan.FileOffset+uint64(len(plan.Patch)) > uint64(info.Size()) {
		return errors.Errorf("patch range [%d,%d) exceeds file size %d", plan.FileOffset, plan.FileOffset+uint64(len(plan.Patch)), info.Size())
	}

	if _, err := f.WriteAt(plan.Patch, int64(plan.FileOffset)); err != nil {
		return err
	}
	return f.Close()
}
