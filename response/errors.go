package response

import "github.com/pkg/errors"

// ErrHandleNotOpen is returned when an operation needs an open
// stream handle, for example when the body is claimed a second time
// or the response was already disposed.
var ErrHandleNotOpen = errors.New("stream handle not open")
