package response

import (
	"io"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/bborbe/httpconn/pool"
)

// Response couples a parsed Record with the StreamHandle it was read
// from. Dispose decides whether the connection goes back to the pool
// or is torn down.
//
// A Response is meant for a single caller. Body and Dispose must not
// be called concurrently without external synchronization.
type Response interface {
	Record() *Record
	// Header returns the header value for the given name or the
	// empty string if the header is not present.
	Header(name string) string
	// Body returns the single body reader. A second call fails with
	// ErrHandleNotOpen, the first reader stays valid.
	Body() (io.ReadCloser, error)
	// Dispose releases the connection to the pool or closes it.
	// Only the first call has any effect.
	Dispose()
}

// NewResponse creates the lifecycle manager for one response.
// keepAlive is the caller's preference for reusing the connection,
// it takes priority over the Connection response header.
func NewResponse(
	record *Record,
	handle *StreamHandle,
	connectionPool pool.Pool,
	keepAlive bool,
) Response {
	return &response{
		record:    record,
		handle:    handle,
		pool:      connectionPool,
		keepAlive: keepAlive,
	}
}

type response struct {
	record    *Record
	handle    *StreamHandle
	pool      pool.Pool
	keepAlive bool
}

func (r *response) Record() *Record {
	return r.record
}

func (r *response) Header(name string) string {
	return r.record.Get(name)
}

func (r *response) Body() (io.ReadCloser, error) {
	if r.handle == nil {
		return nil, errors.Wrap(ErrHandleNotOpen, "response disposed")
	}
	return r.handle.claimBody(r.record.ContentLength)
}

func (r *response) Dispose() {
	handle := r.handle
	if handle == nil {
		return
	}
	r.handle = nil
	if state := handle.State(); state == HandleStateReleased || state == HandleStateClosed {
		return
	}
	if !r.keepAlive {
		r.close(handle)
		return
	}
	if strings.EqualFold(strings.TrimSpace(r.record.Get("Connection")), "close") {
		r.close(handle)
		return
	}
	r.release(handle)
}

// release returns the connection to the pool. The handle is removed
// from the in-flight bookkeeping first so the pool never holds the
// same connection twice.
//
// Unread body bytes are not drained here, a connection released with
// pending bytes is the pool owner's problem.
func (r *response) release(handle *StreamHandle) {
	if r.pool != nil {
		r.pool.RemoveIfPresent(handle)
	}
	handle.markReleased()
	if r.pool != nil {
		r.pool.AddIdle(handle)
	}
	glog.V(2).Infof("released connection to %s", handle.Destination())
}

// close tears down the connection. Teardown failures are logged and
// swallowed, the response data was already delivered.
func (r *response) close(handle *StreamHandle) {
	if r.pool != nil {
		r.pool.RemoveIfPresent(handle)
	}
	if err := handle.Close(); err != nil {
		glog.Warningf("close connection to %s failed: %v", handle.Destination(), err)
	}
	glog.V(2).Infof("closed connection to %s", handle.Destination())
}
