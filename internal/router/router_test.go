package router

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"classboard/internal/exercise"
	"classboard/internal/session"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

type captureWriter struct {
	mu        sync.Mutex
	envelopes []*wire.Envelope
}

func (w *captureWriter) WriteEnvelope(env *wire.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.envelopes = append(w.envelopes, env)
	return nil
}

func (w *captureWriter) last() *wire.Envelope {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.envelopes) == 0 {
		return nil
	}
	return w.envelopes[len(w.envelopes)-1]
}

func (w *captureWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.envelopes)
}

type appliedAnswer struct {
	answer  interface{}
	correct bool
	animate bool
}

type recordingHandler struct {
	mu      sync.Mutex
	applied []appliedAnswer
	cleared int
	checked int
}

func (h *recordingHandler) Apply(answer interface{}, correct bool, animate bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, appliedAnswer{answer, correct, animate})
}

func (h *recordingHandler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared++
}

func (h *recordingHandler) CheckAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checked++
}

func (h *recordingHandler) applyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.applied)
}

type progressCapture struct {
	mu      sync.Mutex
	updates map[string]types.ProgressState
}

func newProgressCapture() *progressCapture {
	return &progressCapture{updates: make(map[string]types.ProgressState)}
}

func (p *progressCapture) UpdateProgress(taskID string, progress types.ProgressState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates[taskID] = progress
}

func (p *progressCapture) get(taskID string) (types.ProgressState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.updates[taskID]
	return v, ok
}

func newTestRouter(sess *session.Context, handlers PageHandlers) (*Router, *captureWriter, *exercise.Registry, *progressCapture) {
	out := &captureWriter{}
	registry := exercise.NewRegistry()
	progress := newProgressCapture()
	r := NewRouter(sess, out, registry, progress, handlers, zerolog.Nop())
	return r, out, registry, progress
}

func TestSend_StudentAlwaysAddressesTeacher(t *testing.T) {
	sess := session.NewContext(types.RoleStudent, 42, types.ModeClassroom)
	r, out, _, _ := newTestRouter(sess, PageHandlers{})

	hints := []wire.Receivers{wire.ToAll(), wire.ToTeacher(), wire.ToStudent(), wire.ToStudents(7, 12)}
	for _, hint := range hints {
		if err := r.Send(wire.RequestTaskAnswer, "t1", nil, hint); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		env := out.last()
		if env.Receivers.Target != wire.TargetTeacher {
			t.Errorf("Hint %+v: expected receivers teacher, got %+v", hint, env.Receivers)
		}
	}
}

func TestSend_TeacherStudentHintResolvesViewedSet(t *testing.T) {
	sess := session.NewContext(types.RoleTeacher, 1, types.ModeClassroom)
	r, out, _, _ := newTestRouter(sess, PageHandlers{})

	sess.SetViewedStudent(7)
	if err := r.Send(wire.RequestTaskAnswer, "t1", nil, wire.ToStudent()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	env := out.last()
	if len(env.Receivers.IDs) != 1 || env.Receivers.IDs[0] != 7 {
		t.Errorf("Expected receivers [7], got %+v", env.Receivers)
	}

	sess.SetViewedStudent(7, 12)
	if err := r.Send(wire.RequestTaskAnswer, "t1", nil, wire.ToStudent()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	env = out.last()
	if len(env.Receivers.IDs) != 2 || env.Receivers.IDs[0] != 7 || env.Receivers.IDs[1] != 12 {
		t.Errorf("Expected receivers [7 12], got %+v", env.Receivers)
	}
}

func TestSend_TeacherWithNoSelectionIsNoop(t *testing.T) {
	sess := session.NewContext(types.RoleTeacher, 1, types.ModeClassroom)
	r, out, _, _ := newTestRouter(sess, PageHandlers{})

	if err := r.Send(wire.RequestTaskAnswer, "t1", nil, wire.ToStudent()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if out.count() != 0 {
		t.Errorf("Expected no envelope written, got %d", out.count())
	}
}

func TestSend_TeacherOtherHintsPassThrough(t *testing.T) {
	sess := session.NewContext(types.RoleTeacher, 1, types.ModeClassroom)
	r, out, _, _ := newTestRouter(sess, PageHandlers{})

	if err := r.Send(wire.RequestCopyingEnable, "", nil, wire.ToAll()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if out.last().Receivers.Target != wire.TargetAll {
		t.Errorf("Expected all, got %+v", out.last().Receivers)
	}

	if err := r.Send(wire.RequestTaskAnswer, "t1", nil, wire.ToTeacher()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if out.last().Receivers.Target != wire.TargetTeacher {
		t.Errorf("Expected teacher, got %+v", out.last().Receivers)
	}
}

func TestDispatch_AnswerFromNonViewedStudentDropped(t *testing.T) {
	sess := session.NewContext(types.RoleTeacher, 1, types.ModeClassroom)
	sess.SetViewedStudent(7)
	r, _, registry, _ := newTestRouter(sess, PageHandlers{})

	h := &recordingHandler{}
	registry.Mount("t1", h)

	r.Dispatch(&wire.Envelope{
		RequestType: wire.RequestTaskAnswer,
		TaskID:      "t1",
		SenderID:    12,
		Data:        map[string]interface{}{"answer": "x", "is_correct": true},
	})
	if h.applyCount() != 0 {
		t.Error("Answer from non-viewed student must never reach a handler")
	}

	r.Dispatch(&wire.Envelope{
		RequestType: wire.RequestTaskAnswer,
		TaskID:      "t1",
		SenderID:    7,
		Data:        map[string]interface{}{"answer": "x", "is_correct": true},
	})
	if h.applyCount() != 1 {
		t.Errorf("Answer from viewed student must apply exactly once, got %d", h.applyCount())
	}
}

func TestDispatch_AnswerAppliesWithProgress(t *testing.T) {
	sess := session.NewContext(types.RoleStudent, 7, types.ModeClassroom)
	r, _, registry, progress := newTestRouter(sess, PageHandlers{})

	h := &recordingHandler{}
	registry.Mount("t1", h)

	r.Dispatch(&wire.Envelope{
		RequestType: wire.RequestTaskAnswer,
		TaskID:      "t1",
		SenderID:    1,
		Data: map[string]interface{}{
			"answer":          "badger",
			"is_correct":      true,
			"correct_count":   float64(3),
			"incorrect_count": float64(1),
			"max_score":       float64(10),
		},
	})

	if h.applyCount() != 1 {
		t.Fatalf("Expected one apply, got %d", h.applyCount())
	}
	applied := h.applied[0]
	if applied.answer != "badger" || !applied.correct || !applied.animate {
		t.Errorf("Unexpected apply arguments: %+v", applied)
	}

	p, ok := progress.get("t1")
	if !ok {
		t.Fatal("Expected progress update")
	}
	if p.CorrectCount != 3 || p.IncorrectCount != 1 || p.MaxScore != 10 {
		t.Errorf("Unexpected progress: %+v", p)
	}
}

func TestDispatch_AnswerForUnmountedTaskIsNoop(t *testing.T) {
	sess := session.NewContext(types.RoleStudent, 7, types.ModeClassroom)
	r, _, _, _ := newTestRouter(sess, PageHandlers{})

	// Must not panic; the teacher may have moved to a different section.
	r.Dispatch(&wire.Envelope{
		RequestType: wire.RequestTaskAnswer,
		TaskID:      "gone",
		Data:        map[string]interface{}{"answer": "x"},
	})
}

func TestDispatch_BulkCheckAndReset(t *testing.T) {
	sess := session.NewContext(types.RoleStudent, 7, types.ModeClassroom)
	r, _, registry, _ := newTestRouter(sess, PageHandlers{})

	h := &recordingHandler{}
	registry.Mount("t1", h)

	r.Dispatch(&wire.Envelope{RequestType: wire.RequestTestCheck, TaskID: "t1"})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestTrueFalseCheck, TaskID: "t1"})
	if h.checked != 2 {
		t.Errorf("Expected 2 bulk checks, got %d", h.checked)
	}

	r.Dispatch(&wire.Envelope{RequestType: wire.RequestTaskReset, TaskID: "t1"})
	if h.cleared != 1 {
		t.Errorf("Expected 1 clear, got %d", h.cleared)
	}
}

func TestDispatch_SessionLevelHandlers(t *testing.T) {
	sess := session.NewContext(types.RoleTeacher, 1, types.ModeClassroom)

	var entered, left []int
	var copying []bool
	var reloads int
	var pages []int
	var attention []string

	r, _, _, _ := newTestRouter(sess, PageHandlers{
		Attention:       func(taskID string) { attention = append(attention, taskID) },
		UserEnter:       func(userID int) { entered = append(entered, userID) },
		UserLeave:       func(userID int) { left = append(left, userID) },
		CopyRestriction: func(enabled bool) { copying = append(copying, enabled) },
		PageReload:      func() { reloads++ },
		PDFPage:         func(page int) { pages = append(pages, page) },
	})

	r.Dispatch(&wire.Envelope{RequestType: wire.RequestTaskAttention, TaskID: "t9"})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestUserEnter, Data: map[string]interface{}{"user_id": float64(7)}})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestUserLeave, Data: map[string]interface{}{"user_id": float64(7)}})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestCopyingEnable})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestCopyingDisable})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestPageReload})
	r.Dispatch(&wire.Envelope{RequestType: wire.RequestPDFPage, Data: map[string]interface{}{"page": float64(14)}})

	if len(attention) != 1 || attention[0] != "t9" {
		t.Errorf("Unexpected attention calls: %v", attention)
	}
	if len(entered) != 1 || entered[0] != 7 || len(left) != 1 || left[0] != 7 {
		t.Errorf("Unexpected roster calls: enter=%v leave=%v", entered, left)
	}
	if len(copying) != 2 || !copying[0] || copying[1] {
		t.Errorf("Unexpected copy restriction toggles: %v", copying)
	}
	if reloads != 1 {
		t.Errorf("Expected one reload, got %d", reloads)
	}
	if len(pages) != 1 || pages[0] != 14 {
		t.Errorf("Unexpected pdf pages: %v", pages)
	}
}

func TestDispatch_UnknownTypeIgnored(t *testing.T) {
	sess := session.NewContext(types.RoleStudent, 7, types.ModeClassroom)
	r, _, registry, _ := newTestRouter(sess, PageHandlers{})

	h := &recordingHandler{}
	registry.Mount("t1", h)

	// Protocol evolution: unknown types are not an error.
	r.Dispatch(&wire.Envelope{RequestType: "task-hologram", TaskID: "t1"})
	if h.applyCount() != 0 || h.cleared != 0 || h.checked != 0 {
		t.Error("Unknown request type must not touch handlers")
	}
}
