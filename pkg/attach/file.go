package attach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// FileSource is a payload in a local file, addressed as file://host/path.
type FileSource struct {
	state
	uri  *url.URL
	path string
}

func (r *Registry) newFile(uri *url.URL, path string, md Metadata) *FileSource {
	return &FileSource{state: newState(r, md), uri: uri, path: path}
}

// filePath extracts the local path of a file: URI.
func filePath(uri *url.URL) (string, error) {
	p := uri.Path
	if p == "" {
		p = uri.Opaque
	}
	if p == "" {
		return "", fmt.Errorf("%w: file uri without path: %s", ErrInvalidSource, uri)
	}
	return filepath.FromSlash(p), nil
}

func (r *Registry) reloadFile(_ context.Context, uri *url.URL, md Metadata) (Source, error) {
	path, err := filePath(uri)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, missing("file "+path, err)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return r.newFile(uri, path, md), nil
}

func (r *Registry) storeFile(ctx context.Context, src Source, uri *url.URL) (Source, error) {
	path, err := filePath(uri)
	if err != nil {
		return nil, err
	}
	md, err := r.writeFile(ctx, src, path)
	if err != nil {
		return nil, err
	}
	return r.newFile(uri, path, md), nil
}

// writeFile copies src to a new file at path. An existing file is never
// replaced: the create is exclusive and a taken path yields ErrStorageConflict.
func (r *Registry) writeFile(ctx context.Context, src Source, path string) (Metadata, error) {
	data, md, err := snapshot(ctx, src)
	if err != nil {
		return Metadata{}, err
	}

	//nolint:gosec // G301: stored attachments are world-readable
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return Metadata{}, fmt.Errorf("failed to ensure directory for %s: %w", path, err)
	}
	//nolint:gosec // G302: stored attachments are world-readable
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if errors.Is(err, fs.ErrExist) {
		return Metadata{}, fmt.Errorf("%w: file %s exists", ErrStorageConflict, path)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create %s: %w", path, err)
	}

	_, err = io.Copy(f, bytes.NewReader(data))
	if err == nil {
		// The create mode is subject to umask.
		err = f.Chmod(fileMode)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Metadata{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return md, nil
}

func (s *FileSource) Valid(ctx context.Context) bool {
	return s.validate(ctx, func(context.Context) error {
		if _, err := os.Stat(s.path); err != nil {
			return missing("file "+s.path, err)
		}
		return nil
	})
}

func (s *FileSource) Persistent() bool { return true }

// ReadOnly is true once destroyed or when this process cannot write the file.
func (s *FileSource) ReadOnly() bool {
	return s.frozen || !writable(s.path)
}

func (s *FileSource) URI() *url.URL { return s.uri }

// PublicURI is the path relative to the public root, or nil outside it.
func (s *FileSource) PublicURI() *url.URL {
	return publicURI(s.path, s.reg.publicRoot)
}

func (s *FileSource) Metadata(ctx context.Context) (Metadata, error) {
	return s.assemble(ctx, s.supplied, s.Blob)
}

func (s *FileSource) supplied(context.Context) (Metadata, error) {
	var md Metadata
	md.Set(KeyFilename, filepath.Base(s.path))
	if fi, err := os.Stat(s.path); err == nil {
		md.Set(KeySize, fi.Size())
		md.Set(KeyLastModified, fi.ModTime().UTC())
	}
	return md, nil
}

func (s *FileSource) Blob(context.Context) ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing("file "+s.path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileSource) Open(context.Context) (io.ReadCloser, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing("file "+s.path, err)
	}
	return f, err
}

func (s *FileSource) Tempfile(ctx context.Context) (string, error) {
	rc, err := s.Open(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return s.reg.writeTemp(tempName(s.primer, filepath.Base(s.path)), rc)
}

// Destroy deletes the file. A file that is already gone yields ErrMissingSource.
func (s *FileSource) Destroy(context.Context) error {
	if s.frozen {
		return nil
	}
	err := os.Remove(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = missing("file "+s.path, err)
	case err != nil:
		err = fmt.Errorf("failed to delete %s: %w", s.path, err)
	}
	return s.settle(err)
}

func publicURI(path, root string) *url.URL {
	if root == "" {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil
	}
	if resolved, err = filepath.Abs(resolved); err != nil {
		return nil
	}
	if resolvedRoot, err = filepath.Abs(resolvedRoot); err != nil {
		return nil
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return &url.URL{Path: "/" + filepath.ToSlash(rel)}
}
