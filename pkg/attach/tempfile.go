package attach

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TempNamer returns a file name for a temp copy of a payload named base+ext.
type TempNamer func(base, ext string) string

// DefaultTempNamer appends a random UUID to the base name.
func DefaultTempNamer(base, ext string) string {
	return base + "-" + uuid.NewString() + ext
}

// writeTemp copies r into a new file in the registry's temp directory and
// returns its path. The file is closed and owned by the caller.
func (r *Registry) writeTemp(filename string, src io.Reader) (_ string, err error) {
	//nolint:gosec // G301: temp dir is private to the process owner
	if err := os.MkdirAll(r.tempDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to ensure temp dir: %w", err)
	}

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = defaultFilename
	}
	ext := filepath.Ext(name)
	path := filepath.Join(r.tempDir, filepath.Base(r.namer(strings.TrimSuffix(name, ext), ext)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close temp file: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = io.Copy(f, src); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, nil
}

// tempName picks the file name a temp copy is derived from.
func tempName(md Metadata, fallback string) string {
	if fn := md.Filename(); fn != "" {
		return fn
	}
	if fallback != "" {
		return fallback
	}
	return defaultFilename
}
