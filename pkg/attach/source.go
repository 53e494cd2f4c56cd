package attach

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // MD5 is the content digest format, not a security primitive
	"errors"
	"io"
	"net/url"

	"github.com/Mindburn-Labs/attach/pkg/attach/mimetypes"
)

// Source is one payload and its metadata, backed by some storage medium.
//
// Validity is lazy: constructors never touch the backend, and the first call
// to Valid or Err performs the backend's existence check. A Source is not
// safe for concurrent mutation. After Destroy it is frozen: fetching
// operations return ErrDestroyed while Metadata keeps returning the last
// known attributes.
type Source interface {
	// Valid reports whether Err is nil.
	Valid(ctx context.Context) bool
	// Err is the reason the last validity check failed, or nil.
	Err() error

	// Persistent reports whether the payload outlives this process.
	Persistent() bool
	// ReadOnly reports whether this process may not replace the payload.
	ReadOnly() bool

	// URI is the storage address; nil when not persistent.
	URI() *url.URL
	// PublicURI is where the payload can be fetched over the network, if anywhere.
	PublicURI() *url.URL

	Metadata(ctx context.Context) (Metadata, error)
	// Blob returns a full in-memory copy of the payload.
	Blob(ctx context.Context) ([]byte, error)
	// Open returns a fresh reader positioned at the start of the payload.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Tempfile writes the payload to a new closed file and returns its path.
	// The caller owns the file.
	Tempfile(ctx context.Context) (string, error)
	// Destroy releases backing storage and freezes the Source. When the
	// release fails the Source stays live and Destroy may be retried.
	Destroy(ctx context.Context) error
}

// state carries what every backend shares: the primer metadata, the memoized
// metadata, the validity verdict and the frozen flag.
type state struct {
	reg     *Registry
	primer  Metadata
	cached  *Metadata
	checked bool
	err     error
	frozen  bool
}

func newState(reg *Registry, md Metadata) state {
	return state{reg: reg, primer: md.Clone()}
}

func (s *state) Err() error {
	if s.frozen {
		return ErrDestroyed
	}
	return s.err
}

// validate runs check once and records its verdict.
func (s *state) validate(ctx context.Context, check func(context.Context) error) bool {
	if s.frozen {
		return false
	}
	if !s.checked {
		s.err = check(ctx)
		s.checked = true
	}
	return s.err == nil
}

// live guards operations that touch the payload.
func (s *state) live() error {
	if s.frozen {
		return ErrDestroyed
	}
	return nil
}

// freeze snapshots the metadata and marks the Source destroyed.
func (s *state) freeze() {
	if s.cached == nil {
		md := s.primer.Clone()
		s.cached = &md
	}
	s.frozen = true
}

// settle freezes the Source when a destroy released its storage or found it
// already gone. Other failures leave it live so Destroy can be retried.
func (s *state) settle(err error) error {
	if err == nil || errors.Is(err, ErrMissingSource) {
		s.freeze()
	}
	return err
}

// assemble merges primer metadata with backend-supplied attributes and then
// fills digest, size and mime type from the payload. Present values are never
// replaced. The result is memoized.
func (s *state) assemble(ctx context.Context, supplied func(context.Context) (Metadata, error), blob func(context.Context) ([]byte, error)) (Metadata, error) {
	if s.cached != nil {
		return s.cached.Clone(), nil
	}

	md := s.primer.Clone()
	if supplied != nil {
		extra, err := supplied(ctx)
		if err != nil {
			return Metadata{}, err
		}
		md.ReverseMerge(extra)
	}

	mimes := s.reg.mimes
	if !md.Has(KeyMimeType) && md.Filename() != "" {
		if mt := mimes.ByFilename(md.Filename()); mt != "" {
			md.Set(KeyMimeType, mt)
		}
	}
	if !md.Has(KeyDigest) || !md.Has(KeySize) || !md.Has(KeyMimeType) {
		data, err := blob(ctx)
		if err != nil {
			return Metadata{}, err
		}
		fillComputed(&md, data, mimes)
	}
	md.SetDefault(KeyFilename, defaultFilename)

	s.cached = &md
	return md.Clone(), nil
}

const defaultFilename = "attachment"

func fillComputed(md *Metadata, data []byte, mimes *mimetypes.Registry) {
	if !md.Has(KeyDigest) {
		md.Set(KeyDigest, Digest(data))
	}
	md.SetDefault(KeySize, int64(len(data)))
	if !md.Has(KeyMimeType) {
		mt := mimes.Sniff(data)
		if mt == "" {
			mt = mimetypes.OctetStream
		}
		md.Set(KeyMimeType, mt)
	}
}

// Digest returns the MD5 of data, the format Metadata digests use.
func Digest(data []byte) []byte {
	sum := md5.Sum(data) //nolint:gosec
	return sum[:]
}

func readerOf(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
