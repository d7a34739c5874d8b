package wasigrpc

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
)

var _ http.RoundTripper = (*Endpoint)(nil)

// RoundTrip implements http.RoundTripper on top of Send, so an Endpoint can back
// an http.Client or any client code written against net/http.
//
// http.Header does not keep the order between different names; names are sent
// in sorted order. Request trailers declared in r.Trailer are sent once the
// body has been read.
func (e *Endpoint) RoundTrip(r *http.Request) (*http.Response, error) {
	req := &Request{
		Method: r.Method,
		URL:    r.URL,
		Header: HeaderFromHTTP(r.Header),
	}
	if r.Body != nil && r.Body != http.NoBody {
		req.Body = &trailerReader{
			rc: r.Body,
			onEOF: func() {
				req.Trailer = HeaderFromHTTP(r.Trailer)
			},
		}
	}

	resp, err := e.Send(r.Context(), req)
	if err != nil {
		return nil, err
	}

	hr := &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/2.0",
		ProtoMajor:    2,
		ProtoMinor:    0,
		Header:        resp.Header.HTTP(),
		Trailer:       http.Header{},
		ContentLength: -1,
		Request:       r,
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			hr.ContentLength = n
		}
	}
	hr.Body = &httpBody{body: resp.Body, trailer: hr.Trailer}
	return hr, nil
}

// Do lets an Endpoint stand in for an *http.Client, e.g. as a connect
// HTTPClient.
func (e *Endpoint) Do(r *http.Request) (*http.Response, error) {
	return e.RoundTrip(r)
}

// trailerReader calls onEOF before reporting the end of the wrapped body.
type trailerReader struct {
	rc    io.ReadCloser
	onEOF func()
	once  sync.Once
}

func (t *trailerReader) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if err == io.EOF {
		t.once.Do(t.onEOF)
	}
	return n, err
}

func (t *trailerReader) Close() error {
	return t.rc.Close()
}

// httpBody copies the response trailers into the http.Response at EOF, which is
// when net/http callers expect to find them.
type httpBody struct {
	body    *Body
	trailer http.Header
	once    sync.Once
}

func (b *httpBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err == io.EOF {
		b.once.Do(func() {
			for _, f := range b.body.Trailer() {
				b.trailer.Add(f.Name, f.Value)
			}
		})
	}
	return n, err
}

func (b *httpBody) Close() error {
	return b.body.Close()
}
