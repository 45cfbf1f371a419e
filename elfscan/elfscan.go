// Package elfscan opens an ELF binary and yields the sections a
// disassembler should look at. It performs no instruction-level
// analysis of its own; that is the job of the disasm package.
package elfscan

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"
)

// ErrNotELF is returned when the input is empty or too short to hold
// an ELF identifier, does not begin with the ELF magic number, or is
// otherwise rejected by debug/elf as malformed.
var ErrNotELF = errors.New("elfscan: not an ELF file")

// Section is a single ELF section, reduced to the fields the fault
// planning pipeline cares about.
type Section struct {
	Name   string
	Addr   uint64 // sh_addr, the section's virtual address
	Offset uint64 // sh_offset, the section's position in the file
	Data   []byte
}

// Load opens r as an ELF file and returns every section in file order,
// each carrying its own (already-read) byte content.
//
// Load performs no section selection; Select does that.
func Load(r io.ReaderAt) ([]Section, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		if isMagicError(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrNotELF
		}
		return nil, errors.Wrap(err, "elfscan: parse ELF")
	}
	defer f.Close()

	secs := make([]Section, 0, len(f.Sections))
	for _, s := range f.Sections {
		data, err := s.Data()
		if err != nil {
			// SHT_NOBITS sections (e.g. .bss) have no file content;
			// treat as empty rather than failing the whole load.
			data = nil
		}
		secs = append(secs, Section{
			Name:   s.Name,
			Addr:   s.Addr,
			Offset: s.Offset,
			Data:   data,
		})
	}
	return secs, nil
}

// isMagicError reports whether err is a debug/elf FormatError: the
// rejection of a file that doesn't start with \x7fELF, or of any other
// malformed structure elf.NewFile finds.
func isMagicError(err error) bool {
	var fmtErr *elf.FormatError
	return errors.As(err, &fmtErr)
}
