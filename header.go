package wasigrpc

import (
	"net/http"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// HeaderField is one name/value pair of a Header.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Unlike http.Header it keeps the
// relative order of different names, and duplicate names stay in order.
type Header []HeaderField

// Add appends a field.
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Set replaces every field named name with a single one, keeping the position
// of the first occurrence.
func (h *Header) Set(name, value string) {
	out := (*h)[:0]
	set := false
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !set {
			out = append(out, HeaderField{Name: name, Value: value})
			set = true
		}
	}
	if !set {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Get returns the first value for name, matched case-insensitively.
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns all values for name in order.
func (h Header) Values(name string) []string {
	var vs []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

// Clone returns a copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	return append(Header(nil), h...)
}

// HTTP converts h to an http.Header. Per-name order is kept; names are
// canonicalised.
func (h Header) HTTP() http.Header {
	out := make(http.Header, len(h))
	for _, f := range h {
		out.Add(f.Name, f.Value)
	}
	return out
}

// HeaderFromHTTP converts an http.Header. http.Header does not record the order
// between names, so names are sorted to keep the result deterministic.
func HeaderFromHTTP(hdr http.Header) Header {
	names := make([]string, 0, len(hdr))
	for name := range hdr {
		names = append(names, name)
	}
	sort.Strings(names)

	var out Header
	for _, name := range names {
		for _, v := range hdr[name] {
			out = append(out, HeaderField{Name: name, Value: v})
		}
	}
	return out
}

// validField reports whether name and value may be sent as a header field.
func validField(name, value string) bool {
	return httpguts.ValidHeaderFieldName(name) && httpguts.ValidHeaderFieldValue(value)
}

// toFields validates h and converts it to the host representation.
func toFields(op string, h Header) (types.Fields, error) {
	if len(h) == 0 {
		return nil, nil
	}
	out := make(types.Fields, 0, len(h))
	for i, f := range h {
		if !validField(f.Name, f.Value) {
			return nil, protocolErrorf(op, "invalid header field %d %q", i, f.Name)
		}
		out = append(out, types.Field{Name: f.Name, Value: []byte(f.Value)})
	}
	return out, nil
}

// fromFields validates host fields and converts them to a Header.
func fromFields(op string, fs types.Fields) (Header, error) {
	if len(fs) == 0 {
		return nil, nil
	}
	out := make(Header, 0, len(fs))
	for i, f := range fs {
		v := string(f.Value)
		if !validField(f.Name, v) {
			return nil, protocolErrorf(op, "invalid header field %d %q", i, f.Name)
		}
		out = append(out, HeaderField{Name: f.Name, Value: v})
	}
	return out, nil
}
