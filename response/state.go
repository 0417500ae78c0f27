package response

import "fmt"

// HandleState is the lifecycle state of a StreamHandle.
type HandleState int

const (
	// HandleStateOpen means the body has not been claimed yet.
	HandleStateOpen HandleState = iota
	// HandleStateCloned means the single body reader has been handed out.
	HandleStateCloned
	// HandleStateReleased means the handle was returned to the pool.
	HandleStateReleased
	// HandleStateClosed means the connection was torn down.
	HandleStateClosed
)

func (h HandleState) String() string {
	switch h {
	case HandleStateOpen:
		return "open"
	case HandleStateCloned:
		return "cloned"
	case HandleStateReleased:
		return "released"
	case HandleStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", h)
	}
}
