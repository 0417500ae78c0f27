package header

import (
	"net/http"
	"strings"
)

// Header is a mapping from case-insensitive header name to value.
// Names keep their insertion order, duplicate writes overwrite the
// previous value (last write wins).
type Header struct {
	names  []string
	values map[string]string
}

func New() *Header {
	return &Header{
		values: make(map[string]string),
	}
}

// NewFromHTTP copies the given http.Header. Multi-valued headers are
// folded, the last value wins.
func NewFromHTTP(httpHeader http.Header) *Header {
	header := New()
	for name, values := range httpHeader {
		for _, value := range values {
			header.Set(name, value)
		}
	}
	return header
}

// Set stores the value under the given name, replacing any value
// stored under the same name in any case variant.
func (h *Header) Set(name string, value string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, name)
	}
	h.values[key] = value
}

// Get returns the value for the given name or the empty string if
// the header is not present.
func (h *Header) Get(name string) string {
	return h.values[strings.ToLower(name)]
}

func (h *Header) Has(name string) bool {
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Names returns the header names in insertion order, spelled as they
// were first set.
func (h *Header) Names() []string {
	result := make([]string, len(h.names))
	copy(result, h.names)
	return result
}

func (h *Header) Len() int {
	return len(h.names)
}

// ToHTTP converts to a http.Header for interop with net/http.
func (h *Header) ToHTTP() http.Header {
	result := http.Header{}
	for _, name := range h.names {
		result.Set(name, h.values[strings.ToLower(name)])
	}
	return result
}
