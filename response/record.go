package response

import (
	"net/http"
	"time"

	"github.com/bborbe/httpconn/header"
)

// Record is a snapshot of a parsed response head. It is read-only
// after construction, status and headers never change once the
// response has been handed to the caller.
type Record struct {
	ProtoMajor int
	ProtoMinor int
	StatusCode int
	Status     string
	// ContentLength is the declared body length, -1 if unknown
	// (header absent or chunked transfer coding).
	ContentLength int64

	header *header.Header
}

func NewRecord(
	protoMajor int,
	protoMinor int,
	statusCode int,
	status string,
	contentLength int64,
	hdr *header.Header,
) *Record {
	if hdr == nil {
		hdr = header.New()
	}
	return &Record{
		ProtoMajor:    protoMajor,
		ProtoMinor:    protoMinor,
		StatusCode:    statusCode,
		Status:        status,
		ContentLength: contentLength,
		header:        hdr,
	}
}

// Header returns the header map. Callers must not modify it.
func (r *Record) Header() *header.Header {
	return r.header
}

// Get returns the header value for the given name or the empty
// string if the header is not present.
func (r *Record) Get(name string) string {
	return r.header.Get(name)
}

// LastModified parses the Last-Modified header. A missing or
// unparsable header is reported as ok == false, never substituted
// with the current time.
func (r *Record) LastModified() (time.Time, bool) {
	value := r.header.Get("Last-Modified")
	if value == "" {
		return time.Time{}, false
	}
	result, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return result, true
}
