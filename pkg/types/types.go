package types

// Role identifies which side of the classroom a session belongs to.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether the role is one of the two known values.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Mode is the classroom mode a session runs in. Live answer mirroring only
// applies in classroom and homework modes.
type Mode string

const (
	ModeClassroom Mode = "classroom"
	ModeHomework  Mode = "homework"
	ModePreview   Mode = "preview"
)

// Mirrors reports whether answers submitted in this mode are broadcast to
// the teacher's open view.
func (m Mode) Mirrors() bool {
	return m == ModeClassroom || m == ModeHomework
}

// SubmitMode selects the result shape callers get back from a submission.
type SubmitMode string

const (
	// SubmitFast returns only the correctness flag (the default).
	SubmitFast SubmitMode = "fast"
	// SubmitComplex returns the full structured result, used for test and
	// true/false bulk grading.
	SubmitComplex SubmitMode = "complex"
)

// AnswerRecord is one persisted answer as returned by the backend
// submission and history APIs. The core never owns this storage; it only
// carries the shape across the wire and into exercise handlers.
type AnswerRecord struct {
	TaskID         string      `json:"task_id"`
	UserID         int         `json:"user_id"`
	Answer         interface{} `json:"answer"`
	IsCorrect      bool        `json:"is_correct"`
	CorrectCount   int         `json:"correct_count"`
	IncorrectCount int         `json:"incorrect_count"`
	MaxScore       int         `json:"max_score"`
}

// Progress returns the aggregate counters of the record.
func (r *AnswerRecord) Progress() ProgressState {
	return ProgressState{
		CorrectCount:   r.CorrectCount,
		IncorrectCount: r.IncorrectCount,
		MaxScore:       r.MaxScore,
	}
}

// ProgressState is the per-exercise derived progress. The counters are
// trusted as handed back by the submission API; correct+incorrect<=max is
// not enforced here.
type ProgressState struct {
	CorrectCount   int `json:"correct_count"`
	IncorrectCount int `json:"incorrect_count"`
	MaxScore       int `json:"max_score"`
}

// Empty reports whether the server returned no aggregate counters.
func (p ProgressState) Empty() bool {
	return p.CorrectCount == 0 && p.IncorrectCount == 0 && p.MaxScore == 0
}

// SubmitResult is what a submission resolves to. Submission failures
// resolve as Failed rather than propagating an error, so callers must not
// assume failures arrive as exceptions.
type SubmitResult struct {
	Correct bool
	Failed  bool
	// Record is populated in SubmitComplex mode only.
	Record *AnswerRecord
}
