package attach

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
)

// maxRedirects bounds how many redirects a fetch follows.
const maxRedirects = 5

// HTTPSource is a read-only remote resource. It has no local identity, so
// Load and Reload are the same operation.
type HTTPSource struct {
	state
	uri *url.URL

	probe  http.Header // headers of the last successful probe
	length int64       // Content-Length of the probe, -1 when unknown
	body   []byte      // memoized GET body
}

func (r *Registry) reloadHTTP(_ context.Context, uri *url.URL, md Metadata) (Source, error) {
	if uri.Host == "" {
		return nil, fmt.Errorf("%w: http uri without host: %s", ErrInvalidSource, uri)
	}
	return &HTTPSource{state: newState(r, md), uri: uri, length: -1}, nil
}

// Valid probes the resource with HEAD, falling back to GET when HEAD does not succeed.
func (s *HTTPSource) Valid(ctx context.Context) bool {
	return s.validate(ctx, s.ensureProbe)
}

func (s *HTTPSource) ensureProbe(ctx context.Context) error {
	if s.probe != nil {
		return nil
	}
	resp, err := s.fetch(ctx, http.MethodHead)
	if err == nil {
		_ = resp.Body.Close()
		s.probe, s.length = resp.Header, resp.ContentLength
		return nil
	}
	s.reg.logger.DebugContext(ctx, "head probe failed, retrying with get", "uri", s.uri.Redacted(), "error", err)
	return s.ensureBody(ctx)
}

// ensureBody performs the full GET once.
func (s *HTTPSource) ensureBody(ctx context.Context) error {
	if s.body != nil {
		return nil
	}
	resp, err := s.fetch(ctx, http.MethodGet)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return missing("read "+s.uri.Redacted(), err)
	}
	s.body = body
	s.probe, s.length = resp.Header, int64(len(body))
	return nil
}

// fetch issues method against the URI, following up to maxRedirects
// redirects. Anything but a final 2xx is reported as ErrMissingSource.
func (s *HTTPSource) fetch(ctx context.Context, method string) (*http.Response, error) {
	target := s.uri
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
		resp, err := s.reg.http.Do(req)
		if err != nil {
			return nil, missing(method+" "+target.Redacted(), err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			_ = resp.Body.Close()
			loc := resp.Header.Get("Location")
			if loc == "" {
				return nil, missing(fmt.Sprintf("%s %s: redirect without location", method, target.Redacted()), nil)
			}
			if hop >= maxRedirects {
				return nil, missing(fmt.Sprintf("%s %s: too many redirects", method, s.uri.Redacted()), nil)
			}
			next, err := target.Parse(loc)
			if err != nil {
				return nil, missing(fmt.Sprintf("%s %s: bad redirect", method, target.Redacted()), err)
			}
			target = next
		default:
			_ = resp.Body.Close()
			return nil, missing(fmt.Sprintf("%s %s: %s", method, target.Redacted(), resp.Status), nil)
		}
	}
}

func (s *HTTPSource) Persistent() bool    { return true }
func (s *HTTPSource) ReadOnly() bool      { return true }
func (s *HTTPSource) URI() *url.URL       { return s.uri }
func (s *HTTPSource) PublicURI() *url.URL { return s.uri }

func (s *HTTPSource) Metadata(ctx context.Context) (Metadata, error) {
	return s.assemble(ctx, s.supplied, s.Blob)
}

// supplied reads filename from the URI path and mime type, size, digest and
// modification time from the probe's headers.
func (s *HTTPSource) supplied(ctx context.Context) (Metadata, error) {
	var md Metadata
	if name := path.Base(s.uri.Path); name != "/" && name != "." {
		md.Set(KeyFilename, name)
	}
	if err := s.ensureProbe(ctx); err != nil {
		return Metadata{}, err
	}
	if ct := s.probe.Get("Content-Type"); ct != "" {
		md.Set(KeyMimeType, s.reg.mimes.Canonical(ct))
	}
	if s.length >= 0 {
		md.Set(KeySize, s.length)
	} else if n, err := strconv.ParseInt(s.probe.Get("Content-Length"), 10, 64); err == nil {
		md.Set(KeySize, n)
	}
	if sum := s.probe.Get("Content-MD5"); sum != "" {
		if digest, err := base64.StdEncoding.DecodeString(sum); err == nil && len(digest) == 16 {
			md.Set(KeyDigest, digest)
		}
	}
	if lm, err := http.ParseTime(s.probe.Get("Last-Modified")); err == nil {
		md.Set(KeyLastModified, lm.UTC())
	}
	return md, nil
}

// Blob fetches the full body. Unlike Valid, a failed fetch is returned as an error.
func (s *HTTPSource) Blob(ctx context.Context) ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if err := s.ensureBody(ctx); err != nil {
		return nil, err
	}
	return bytes.Clone(s.body), nil
}

func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return nil, err
	}
	return readerOf(data), nil
}

func (s *HTTPSource) Tempfile(ctx context.Context) (string, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return "", err
	}
	return s.reg.writeTemp(tempName(s.primer, path.Base(s.uri.Path)), bytes.NewReader(data))
}

// Destroy freezes the Source; the remote resource is not ours to delete.
func (s *HTTPSource) Destroy(context.Context) error {
	if !s.frozen {
		s.freeze()
		s.body = nil
	}
	return nil
}
