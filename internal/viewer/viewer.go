// Package viewer tracks which student a teacher is observing and rebuilds
// exercise state from persisted history when the selection changes.
// Replay bypasses the network broadcast path entirely: records come from
// the history API and go straight into the exercise handlers.
package viewer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"classboard/internal/exercise"
	"classboard/internal/session"
	"classboard/pkg/interfaces"
)

// ViewerState drives full replay of all mounted exercises when the viewed
// student changes.
type ViewerState struct {
	session  *session.Context
	registry *exercise.Registry
	history  interfaces.HistoryAPI
	log      zerolog.Logger
}

func New(sess *session.Context, registry *exercise.Registry, history interfaces.HistoryAPI, log zerolog.Logger) *ViewerState {
	return &ViewerState{
		session:  sess,
		registry: registry,
		history:  history,
		log:      log.With().Str("component", "viewer").Logger(),
	}
}

// SelectViewedStudent updates the selection and replays every mounted
// exercise against the newly viewed student's history. Passing no ids
// clears the selection and the displayed state.
func (v *ViewerState) SelectViewedStudent(ctx context.Context, ids ...int) {
	if len(ids) == 0 {
		v.session.ClearViewedStudent()
	} else {
		v.session.SetViewedStudent(ids...)
	}
	v.ReplayAll(ctx)
}

// ReplayAll reconstructs every mounted exercise for the current selection.
// Exercises replay independently and concurrently; within one exercise the
// historical records apply strictly in server-returned order, because later
// records may assume earlier ones already mutated shared per-exercise
// state. Animations are suppressed so replay looks instantaneous.
func (v *ViewerState) ReplayAll(ctx context.Context) {
	viewed := v.session.ViewedStudents()

	var wg sync.WaitGroup
	for _, taskID := range v.registry.Tasks() {
		h := v.registry.Get(taskID)
		if h == nil {
			continue
		}
		wg.Add(1)
		go func(taskID string, h interfaces.ExerciseHandler) {
			defer wg.Done()
			v.replayTask(ctx, taskID, h, viewed)
		}(taskID, h)
	}
	wg.Wait()
}

// ReplayTask replays a single exercise for the current viewed student,
// backing the displayUserStats collaborator entry point.
func (v *ViewerState) ReplayTask(ctx context.Context, taskID string) {
	h := v.registry.Get(taskID)
	if h == nil {
		v.log.Debug().Str("task_id", taskID).Msg("replay for unmounted task")
		return
	}
	v.replayTask(ctx, taskID, h, v.session.ViewedStudents())
}

func (v *ViewerState) replayTask(ctx context.Context, taskID string, h interfaces.ExerciseHandler, viewed []int) {
	// Clear first so an empty or failed history leaves the exercise
	// un-answered rather than showing the previous student's state.
	h.Clear()

	if len(viewed) == 0 {
		return
	}
	studentID := viewed[0]

	records, err := v.history.TaskHistory(ctx, taskID, studentID)
	if err != nil {
		// One exercise failing to load must not stop the others.
		v.log.Warn().Err(err).Str("task_id", taskID).Int("user_id", studentID).Msg("history fetch failed")
		return
	}

	for _, rec := range records {
		h.Apply(rec.Answer, rec.IsCorrect, false)
	}
}
