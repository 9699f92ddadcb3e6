// Package router shapes outgoing envelopes from a receivers hint and the
// session role, and dispatches inbound envelopes to their handlers. The
// relay enforces addressing; the router only shapes envelopes before they
// leave the client and filters what it applies on arrival.
package router

import (
	"github.com/rs/zerolog"

	"classboard/internal/exercise"
	"classboard/internal/session"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

// PageHandlers are the session-level collaborator callbacks owned by the
// UI layer. Nil entries are skipped.
type PageHandlers struct {
	// Attention scrolls to and highlights the named exercise.
	Attention func(taskID string)
	// UserEnter fires when a user joins; a teacher may reload the roster
	// if the joining user is unknown.
	UserEnter func(userID int)
	UserLeave func(userID int)
	// CopyRestriction toggles the page-wide copy/paste restriction.
	CopyRestriction func(enabled bool)
	PageReload      func()
	// PDFPage moves the shared PDF viewer to the given page.
	PDFPage func(page int)
}

// Router resolves the effective recipient set for outgoing messages and
// dispatches inbound envelopes by request type.
type Router struct {
	session  *session.Context
	out      interfaces.EnvelopeWriter
	registry *exercise.Registry
	progress interfaces.ProgressSink
	handlers PageHandlers
	log      zerolog.Logger
}

func NewRouter(sess *session.Context, out interfaces.EnvelopeWriter, registry *exercise.Registry, progress interfaces.ProgressSink, handlers PageHandlers, log zerolog.Logger) *Router {
	return &Router{
		session:  sess,
		out:      out,
		registry: registry,
		progress: progress,
		handlers: handlers,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// Send shapes and writes one envelope. The caller supplies a hint
// ("all", "teacher", "student"); the effective receivers depend on role:
//
//   - a student's messages always go to the teacher, regardless of hint;
//   - a teacher's "student" hint resolves to the viewed-student id list,
//     and with no student selected the send is a no-op;
//   - other hints pass through unchanged for a teacher.
func (r *Router) Send(requestType, taskID string, data map[string]interface{}, hint wire.Receivers) error {
	receivers := hint
	switch {
	case r.session.Role() == types.RoleStudent:
		receivers = wire.ToTeacher()
	case hint.IsStudentHint():
		ids := r.session.ViewedStudents()
		if len(ids) == 0 {
			r.log.Debug().Str("request_type", requestType).Msg("no viewed student, dropping send")
			return nil
		}
		receivers = wire.ToStudents(ids...)
	}

	env := &wire.Envelope{
		RequestType: requestType,
		TaskID:      taskID,
		Data:        data,
		Receivers:   receivers,
	}
	return r.out.WriteEnvelope(env)
}

// Dispatch applies one inbound envelope. Called serially from the
// connection's read loop, so each envelope is processed to completion
// before the next. Unknown request types are ignored.
func (r *Router) Dispatch(env *wire.Envelope) {
	if env == nil {
		return
	}

	// A teacher viewing student A must never apply a live answer event
	// from student B to A's displayed state.
	if r.session.Role() == types.RoleTeacher &&
		env.RequestType == wire.RequestTaskAnswer &&
		!r.session.IsViewed(env.SenderID) {
		r.log.Debug().Int("sender_id", env.SenderID).Str("task_id", env.TaskID).
			Msg("dropping answer from non-viewed student")
		return
	}

	switch env.RequestType {
	case wire.RequestTaskAttention:
		if r.handlers.Attention != nil {
			r.handlers.Attention(env.TaskID)
		}

	case wire.RequestTaskAnswer:
		r.applyAnswer(env)

	case wire.RequestTestCheck, wire.RequestTrueFalseCheck:
		if h := r.registry.Get(env.TaskID); h != nil {
			h.CheckAll()
		}
		r.updateProgress(env)

	case wire.RequestTaskReset:
		if h := r.registry.Get(env.TaskID); h != nil {
			h.Clear()
		}

	case wire.RequestUserEnter:
		if r.handlers.UserEnter != nil {
			r.handlers.UserEnter(intField(env.Data, "user_id"))
		}

	case wire.RequestUserLeave:
		if r.handlers.UserLeave != nil {
			r.handlers.UserLeave(intField(env.Data, "user_id"))
		}

	case wire.RequestCopyingEnable:
		if r.handlers.CopyRestriction != nil {
			r.handlers.CopyRestriction(true)
		}

	case wire.RequestCopyingDisable:
		if r.handlers.CopyRestriction != nil {
			r.handlers.CopyRestriction(false)
		}

	case wire.RequestPageReload:
		if r.handlers.PageReload != nil {
			r.handlers.PageReload()
		}

	case wire.RequestPDFPage:
		if r.handlers.PDFPage != nil {
			r.handlers.PDFPage(intField(env.Data, "page"))
		}

	default:
		r.log.Debug().Str("request_type", env.RequestType).Msg("ignoring unknown request type")
	}
}

// applyAnswer applies one live answer to the mounted exercise and feeds
// the carried counters to the progress sink. An unmounted task is a no-op;
// the teacher may have navigated to a different section.
func (r *Router) applyAnswer(env *wire.Envelope) {
	h := r.registry.Get(env.TaskID)
	if h == nil {
		r.log.Debug().Str("task_id", env.TaskID).Msg("answer for unmounted task")
		return
	}

	correct, _ := env.Data["is_correct"].(bool)
	h.Apply(env.Data["answer"], correct, true)
	r.updateProgress(env)
}

func (r *Router) updateProgress(env *wire.Envelope) {
	if r.progress == nil {
		return
	}
	p := types.ProgressState{
		CorrectCount:   intField(env.Data, "correct_count"),
		IncorrectCount: intField(env.Data, "incorrect_count"),
		MaxScore:       intField(env.Data, "max_score"),
	}
	if p.Empty() {
		return
	}
	r.progress.UpdateProgress(env.TaskID, p)
}

// intField reads a numeric payload field. JSON numbers decode as float64;
// integer values stored directly are tolerated for in-process tests.
func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
