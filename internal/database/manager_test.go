package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classboard/pkg/wire"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.RetryDelay = 10 * time.Millisecond

	m, err := NewManager(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func answerEnvelope(messageID, taskID string, senderID int, answer string, correct int) *wire.Envelope {
	return &wire.Envelope{
		RequestType: wire.RequestTaskAnswer,
		TaskID:      taskID,
		Data: map[string]interface{}{
			"answer":          answer,
			"is_correct":      true,
			"correct_count":   correct,
			"incorrect_count": 0,
			"max_score":       10,
		},
		Receivers: wire.ToTeacher(),
		MessageID: messageID,
		SenderID:  senderID,
	}
}

func TestManager_TaskHistoryPreservesArrivalOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ids := []string{"m-1", "m-2", "m-3"}
	for i, answer := range []string{"first", "second", "third"} {
		env := answerEnvelope(ids[i], "t1", 7, answer, i+1)
		require.NoError(t, m.LogEnvelope(ctx, "cs101", env))
	}

	records, err := m.TaskHistory(ctx, "cs101", "t1", 7)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].Answer)
	assert.Equal(t, "second", records[1].Answer)
	assert.Equal(t, "third", records[2].Answer)
	assert.Equal(t, 3, records[2].CorrectCount)
	assert.Equal(t, 10, records[2].MaxScore)
	assert.Equal(t, 7, records[0].UserID)
	assert.Equal(t, "t1", records[0].TaskID)
}

func TestManager_DuplicateMessageIDIgnored(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	env := answerEnvelope("m-1", "t1", 7, "x", 1)
	require.NoError(t, m.LogEnvelope(ctx, "cs101", env))
	require.NoError(t, m.LogEnvelope(ctx, "cs101", env))

	records, err := m.TaskHistory(ctx, "cs101", "t1", 7)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestManager_TaskHistoryFilters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.LogEnvelope(ctx, "cs101", answerEnvelope("m-1", "t1", 7, "mine", 1)))
	require.NoError(t, m.LogEnvelope(ctx, "cs101", answerEnvelope("m-2", "t1", 12, "theirs", 1)))
	require.NoError(t, m.LogEnvelope(ctx, "cs101", answerEnvelope("m-3", "t2", 7, "other task", 1)))
	require.NoError(t, m.LogEnvelope(ctx, "cs201", answerEnvelope("m-4", "t1", 7, "other room", 1)))

	// Non-answer envelopes on the same task never surface as history.
	require.NoError(t, m.LogEnvelope(ctx, "cs101", &wire.Envelope{
		RequestType: wire.RequestTaskReset,
		TaskID:      "t1",
		Receivers:   wire.ToStudents(7),
		MessageID:   "m-5",
		SenderID:    7,
	}))

	records, err := m.TaskHistory(ctx, "cs101", "t1", 7)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mine", records[0].Answer)
}

func TestManager_TaskHistoryEmpty(t *testing.T) {
	m := newTestManager(t)

	records, err := m.TaskHistory(context.Background(), "cs101", "t1", 7)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.LogEnvelope(context.Background(), "cs101", answerEnvelope("m-1", "t1", 7, "x", 1))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestManager_HealthCheck(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}
