// Package answersync is the submit→persist→broadcast→apply pipeline: an
// answer goes to the backend first, and only a successful persist is
// mirrored to the other side of the classroom and fed into the progress
// display.
package answersync

import (
	"context"

	"github.com/rs/zerolog"

	"classboard/internal/session"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

// MessageSender is the outbound routing surface the pipeline needs.
type MessageSender interface {
	Send(requestType, taskID string, data map[string]interface{}, hint wire.Receivers) error
}

// AnswerSync submits answers and keeps the peer view consistent.
type AnswerSync struct {
	session  *session.Context
	api      interfaces.SubmissionAPI
	sender   MessageSender
	progress interfaces.ProgressSink
	notifier interfaces.Notifier
	log      zerolog.Logger
}

func New(sess *session.Context, api interfaces.SubmissionAPI, sender MessageSender, progress interfaces.ProgressSink, notifier interfaces.Notifier, log zerolog.Logger) *AnswerSync {
	return &AnswerSync{
		session:  sess,
		api:      api,
		sender:   sender,
		progress: progress,
		notifier: notifier,
		log:      log.With().Str("component", "answersync").Logger(),
	}
}

// Submit persists one answer and, when live mirroring applies, broadcasts
// the result so the peer view updates without its own request.
//
// A network or server failure never propagates as an error: the answer
// resolves as failed, a transient notice is surfaced, and the user may
// retry by resubmitting.
func (s *AnswerSync) Submit(ctx context.Context, taskID string, answer interface{}, mode types.SubmitMode) *types.SubmitResult {
	userID := s.session.ActingUserID()

	record, err := s.api.SubmitAnswer(ctx, taskID, userID, answer)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Int("user_id", userID).Msg("answer submission failed")
		if s.notifier != nil {
			s.notifier.TransientError("answer could not be saved")
		}
		return &types.SubmitResult{Failed: true}
	}

	if s.session.Mode().Mirrors() {
		// The "student" hint resolves per role: a student's answer lands
		// on the teacher, a teacher's impersonated answer on the viewed
		// student. Best-effort; an offline send is dropped.
		if err := s.sender.Send(wire.RequestTaskAnswer, taskID, map[string]interface{}{
			"answer":          record.Answer,
			"is_correct":      record.IsCorrect,
			"correct_count":   record.CorrectCount,
			"incorrect_count": record.IncorrectCount,
			"max_score":       record.MaxScore,
		}, wire.ToStudent()); err != nil {
			s.log.Debug().Err(err).Str("task_id", taskID).Msg("answer broadcast not delivered")
		}
	}

	if s.progress != nil {
		if p := record.Progress(); !p.Empty() {
			s.progress.UpdateProgress(taskID, p)
		}
	}

	result := &types.SubmitResult{Correct: record.IsCorrect}
	if mode == types.SubmitComplex {
		result.Record = record
	}
	return result
}
