package wire

import (
	"encoding/json"
	"fmt"
)

// Request types form a closed set. Unknown types received over the wire are
// ignored by dispatchers so that older clients tolerate protocol additions.
const (
	RequestTaskAttention  = "task-attention"
	RequestTaskAnswer     = "task-answer"
	RequestTestCheck      = "test-check"
	RequestTrueFalseCheck = "truefalse-check"
	RequestTaskReset      = "task-reset"
	RequestUserEnter      = "user-enter"
	RequestUserLeave      = "user-leave"
	RequestCopyingEnable  = "copying-enable"
	RequestCopyingDisable = "copying-disable"
	RequestPageReload     = "page-reload"
	RequestPDFPage        = "pdf-page"
)

// Logical receiver targets. A target of TargetStudents carries an explicit
// id list instead of a string tag.
const (
	TargetAll     = "all"
	TargetTeacher = "teacher"
	TargetStudent = "student"
)

// Envelope is one addressed message unit exchanged over the persistent
// connection. Envelopes are immutable once written; there is no
// acknowledgment or retry at this layer.
type Envelope struct {
	RequestType string                 `json:"request_type"`
	TaskID      string                 `json:"task_id"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Receivers   Receivers              `json:"receivers"`
	// MessageID is reserved for deduplication. Clients always send it
	// empty; the relay stamps an id before logging.
	MessageID string `json:"message_id"`
	// SenderID is stamped by the relay from the authenticated connection.
	// Values supplied by clients are overwritten.
	SenderID int `json:"sender_id,omitempty"`
}

// Receivers is the addressing field of an envelope: one of the literal
// targets "all", "teacher", "student", or an ordered list of numeric
// student ids. Exactly one of Target and IDs is meaningful.
type Receivers struct {
	Target string
	IDs    []int
}

// ToAll addresses every participant in the classroom.
func ToAll() Receivers { return Receivers{Target: TargetAll} }

// ToTeacher addresses the classroom's teacher.
func ToTeacher() Receivers { return Receivers{Target: TargetTeacher} }

// ToStudent is the logical "student" hint, resolved by the router into an
// explicit id list before an envelope leaves a teacher client.
func ToStudent() Receivers { return Receivers{Target: TargetStudent} }

// ToStudents addresses an explicit set of students.
func ToStudents(ids ...int) Receivers { return Receivers{IDs: ids} }

// IsStudentHint reports whether this value is the unresolved "student"
// target rather than an explicit id list.
func (r Receivers) IsStudentHint() bool { return r.Target == TargetStudent }

// MarshalJSON encodes either the string target or the id list, matching the
// wire format `"all"|"teacher"|"student"|[7,12]`.
func (r Receivers) MarshalJSON() ([]byte, error) {
	if r.Target != "" {
		return json.Marshal(r.Target)
	}
	if r.IDs == nil {
		return json.Marshal([]int{})
	}
	return json.Marshal(r.IDs)
}

// UnmarshalJSON accepts both encodings.
func (r *Receivers) UnmarshalJSON(data []byte) error {
	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		switch target {
		case TargetAll, TargetTeacher, TargetStudent:
			*r = Receivers{Target: target}
			return nil
		}
		return fmt.Errorf("unknown receivers target %q", target)
	}

	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("receivers must be a target string or an id list: %w", err)
	}
	*r = Receivers{IDs: ids}
	return nil
}
