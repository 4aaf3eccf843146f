package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// sectionMeta is one entry of the trailing section-offset index.
type sectionMeta struct {
	Name   string
	Offset int64
	Length uint32
	CRC32  uint32
}

// ErrSectionCRCMismatch is returned by Open/ReadSection when a section's
// stored CRC does not match its bytes.
type ErrSectionCRCMismatch struct {
	Section string
}

func (e ErrSectionCRCMismatch) Error() string {
	return fmt.Sprintf("archive: section %q failed CRC verification", e.Section)
}

// ErrBadMagic is returned when a file does not start with the `.vecdb`
// magic header.
var ErrBadMagic = fmt.Errorf("archive: not a vecdb file (bad magic)")

// Archive is an opened `.vecdb` container: its sections are loaded fully
// into memory, since collections are expected to fit comfortably in RAM
// (the dense vectors themselves are the only section of real size; the
// mmap storage backend does not map this section but keeps its own
// `<name>.dense.mmap` file).
type Archive struct {
	Sections map[string][]byte
}

// Write atomically creates path from sections: writes to path+".tmp",
// fsyncs, then renames over path so a reader never observes a partially
// written container (spec §4.8). Any stale .tmp left by a prior crashed
// write is removed first.
func Write(path string, sections map[string][]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}

	if err := encode(f, sections); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("archive: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("archive: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("archive: rename: %w", err)
	}
	return nil
}

func encode(w io.Writer, sections map[string][]byte) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, FormatVersion); err != nil {
		return err
	}

	// Deterministic order keeps the footer (and so the file bytes) stable
	// across writes for an unchanged section set, which is convenient for
	// hardlink-based snapshot diffing.
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	orderSections(names)

	var offset int64 = int64(len(magic)) + 2
	metas := make([]sectionMeta, 0, len(names))

	for _, name := range names {
		data := sections[name]
		crc := crc32.Checksum(data, crcTable)

		nameBytes := []byte(name)
		if err := binary.Write(w, binary.BigEndian, uint16(len(nameBytes))); err != nil {
			return err
		}
		if _, err := w.Write(nameBytes); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, crc); err != nil {
			return err
		}
		dataOffset := offset + 2 + int64(len(nameBytes)) + 4 + 4
		if _, err := w.Write(data); err != nil {
			return err
		}

		metas = append(metas, sectionMeta{Name: name, Offset: dataOffset, Length: uint32(len(data)), CRC32: crc})
		offset = dataOffset + int64(len(data))
	}

	var footerBuf bytes.Buffer
	if err := gob.NewEncoder(&footerBuf).Encode(metas); err != nil {
		return fmt.Errorf("archive: encode footer: %w", err)
	}
	footerOffset := offset
	if _, err := w.Write(footerBuf.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, footerOffset)
}

// orderSections sorts section names for deterministic output without
// importing sort for a handful of fixed names.
func orderSections(names []string) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

// Open reads and validates a `.vecdb` file, returning every section's
// bytes after verifying its CRC32. A stray `path+".tmp"` from a crashed
// write is removed as a side effect, matching spec §4.8's "partially
// written tmp files are removed on open".
func Open(path string) (*Archive, error) {
	_ = os.Remove(path + ".tmp")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}

	if len(data) < len(magic)+2+8 || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, ErrBadMagic
	}

	footerOffset := int64(binary.BigEndian.Uint64(data[len(data)-8:]))
	if footerOffset < 0 || footerOffset > int64(len(data)-8) {
		return nil, fmt.Errorf("archive: corrupt footer offset")
	}

	var metas []sectionMeta
	if err := gob.NewDecoder(bytes.NewReader(data[footerOffset : len(data)-8])).Decode(&metas); err != nil {
		return nil, fmt.Errorf("archive: decode footer: %w", err)
	}

	sections := make(map[string][]byte, len(metas))
	for _, m := range metas {
		if m.Offset < 0 || m.Offset+int64(m.Length) > int64(len(data)) {
			return nil, fmt.Errorf("archive: section %q out of bounds", m.Name)
		}
		sectionData := data[m.Offset : m.Offset+int64(m.Length)]
		if crc32.Checksum(sectionData, crcTable) != m.CRC32 {
			return nil, ErrSectionCRCMismatch{Section: m.Name}
		}
		sections[m.Name] = sectionData
	}

	return &Archive{Sections: sections}, nil
}
