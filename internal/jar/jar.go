// Package jar reads class entries from a jar and writes a copy of it with
// some entries replaced.
package jar

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrEntryNotFound = errors.New("jar entry not found")

// EntryName returns the entry that holds a class, given its dotted or
// internal name.
func EntryName(class string) string {
	return strings.ReplaceAll(class, ".", "/") + ".class"
}

// Reader is an open jar.
type Reader struct {
	zr *zip.ReadCloser
}

func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open jar %s: %w", path, err)
	}
	return &Reader{zr: zr}, nil
}

func (r *Reader) Close() error {
	return r.zr.Close()
}

func (r *Reader) file(name string) (*zip.File, bool) {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Has reports whether the jar holds an entry for class.
func (r *Reader) Has(class string) bool {
	_, ok := r.file(EntryName(class))
	return ok
}

// Class returns the bytes of a class entry.
func (r *Reader) Class(class string) ([]byte, error) {
	name := EntryName(class)
	f, ok := r.file(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Rewrite writes the jar to w with the entries named in replace (keyed by
// entry name) swapped for new contents. Every other entry is copied without
// recompression, in the original order and with the original headers.
func (r *Reader) Rewrite(w io.Writer, replace map[string][]byte) error {
	for name := range replace {
		if _, ok := r.file(name); !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
		}
	}

	zw := zip.NewWriter(w)
	if r.zr.Comment != "" {
		if err := zw.SetComment(r.zr.Comment); err != nil {
			return err
		}
	}
	for _, f := range r.zr.File {
		data, ok := replace[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		hdr := f.FileHeader
		hdr.CompressedSize64, hdr.UncompressedSize64, hdr.CRC32 = 0, 0, 0
		hdr.Method = zip.Deflate
		fw, err := zw.CreateHeader(&hdr)
		if err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

// Names returns the entry names in archive order.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, f.Name)
	}
	return names
}
