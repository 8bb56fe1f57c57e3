// Package ziputil unpacks uploaded zip archives without letting entries escape the target directory.
package ziputil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Limits bounds what an archive may expand to. Zero fields are unlimited.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// ExtractBytes unpacks an in-memory zip archive into dst, creating dst if needed.
func ExtractBytes(data []byte, dst string, limits Limits) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	return extract(zr, dst, limits)
}

// ExtractFile unpacks the zip archive at path into dst.
func ExtractFile(path, dst string, limits Limits) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()
	return extract(&zr.Reader, dst, limits)
}

func extract(zr *zip.Reader, dst string, limits Limits) error {
	if limits.MaxFiles > 0 && len(zr.File) > limits.MaxFiles {
		return fmt.Errorf("archive holds %d entries, limit is %d", len(zr.File), limits.MaxFiles)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	root := filepath.Clean(dst) + string(filepath.Separator)
	var written int64
	for _, f := range zr.File {
		name := filepath.Clean(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
			return fmt.Errorf("invalid zip entry path %q", f.Name)
		}
		target := filepath.Join(dst, name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("zip entry %q escapes the target directory", f.Name)
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case mode.IsRegular():
			n, err := writeEntry(f, target, remaining(limits.MaxBytes, written))
			if err != nil {
				return err
			}
			written += n
		default:
			// links and devices are never materialized
		}
	}
	return nil
}

func remaining(max, used int64) int64 {
	if max <= 0 {
		return -1
	}
	return max - used
}

func writeEntry(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open zip entry %q: %w", f.Name, err)
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	var src io.Reader = rc
	if budget >= 0 {
		src = io.LimitReader(rc, budget+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write zip entry %q: %w", f.Name, err)
	}
	if budget >= 0 && n > budget {
		return n, fmt.Errorf("archive expands beyond the size limit")
	}
	return n, nil
}
