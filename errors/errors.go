package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Annotation failures. All three trigger the degraded-annotation path:
	// the message is still delivered, tagged with the "unknown" emotion.
	ErrAnnotationUnavailable  = fmt.Errorf("annotation service unavailable")
	ErrAnnotationTimeout      = fmt.Errorf("annotation timed out")
	ErrAnnotationInvalidInput = fmt.Errorf("annotation rejected input")

	ErrRoomClosed     = fmt.Errorf("room is closed")
	ErrNotAMember     = fmt.Errorf("connection is not a member of this room")
	ErrUnknownIntent  = fmt.Errorf("unknown intent")
	ErrEmptyMessage   = fmt.Errorf("empty message")
	ErrMessageTooLong = fmt.Errorf("message too long")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
)
