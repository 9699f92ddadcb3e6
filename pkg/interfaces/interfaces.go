// Package interfaces holds the contracts between the synchronization core
// and its collaborators: the transport, the exercise UI layer, and the
// backend REST APIs. Implementations live elsewhere; tests substitute fakes.
package interfaces

import (
	"context"

	"classboard/pkg/types"
	"classboard/pkg/wire"
)

// Socket is one live transport connection. A socket is created per dial
// attempt and never reused after it closes.
type Socket interface {
	// ReadMessage blocks until the next message or transport failure.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one text message (thread-safe).
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens sockets to the relay endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

// EnvelopeWriter is the outbound half of the connection manager as seen by
// the router. Writes are best-effort; a write while disconnected is dropped.
type EnvelopeWriter interface {
	WriteEnvelope(env *wire.Envelope) error
}

// Notifier surfaces user-facing connectivity and submission notices.
// Every method may be called from a background goroutine.
type Notifier interface {
	// ConnectionRestored fires on re-connect, never on the initial connect.
	ConnectionRestored()
	// ConnectionOffline fires once the reconnect budget is exhausted.
	// Only a network-online signal or a page reload recovers from it.
	ConnectionOffline()
	// TransientError surfaces a recoverable failure, e.g. a submission
	// that did not reach the backend.
	TransientError(message string)
}

// ExerciseHandler is the capability set an exercise type registers for its
// mounted task, replacing lookup of apply functions by naming convention.
// Live dispatch runs on the connection's read loop while replay runs one
// goroutine per task, so implementations must be safe for concurrent use.
type ExerciseHandler interface {
	// Apply applies one answer to the exercise. Replay passes
	// animate=false so reconstruction looks instantaneous.
	Apply(answer interface{}, correct bool, animate bool)
	// Clear resets the exercise's stored answer state.
	Clear()
	// CheckAll triggers bulk grading for the exercise.
	CheckAll()
}

// ProgressSink receives per-exercise aggregate counters for UI display.
type ProgressSink interface {
	UpdateProgress(taskID string, progress types.ProgressState)
}

// SubmissionAPI persists answers against the external backend.
type SubmissionAPI interface {
	SubmitAnswer(ctx context.Context, taskID string, userID int, answer interface{}) (*types.AnswerRecord, error)
}

// HistoryAPI fetches a student's persisted answer history for one task, in
// the order the server returns it.
type HistoryAPI interface {
	TaskHistory(ctx context.Context, taskID string, userID int) ([]types.AnswerRecord, error)
}

// EnvelopeStore is the relay-side envelope log.
type EnvelopeStore interface {
	LogEnvelope(ctx context.Context, classroomID string, env *wire.Envelope) error
	TaskHistory(ctx context.Context, classroomID, taskID string, userID int) ([]types.AnswerRecord, error)
	Close() error
}
