package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classboard/internal/relay"
	"classboard/internal/restapi"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

type fakeStore struct {
	records map[string][]types.AnswerRecord
	err     error
}

func (f *fakeStore) LogEnvelope(context.Context, string, *wire.Envelope) error { return nil }

func (f *fakeStore) TaskHistory(_ context.Context, classroomID, taskID string, userID int) ([]types.AnswerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[classroomID+"/"+taskID], nil
}

func (f *fakeStore) Close() error { return nil }

func newTestServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()
	registry := relay.NewRegistry()
	hub := relay.NewHub(registry, nil, zerolog.Nop())
	handler := relay.NewHandler(hub, relay.DefaultHandlerConfig(), zerolog.Nop())
	if store == nil {
		return NewServer(registry, nil, handler, zerolog.Nop())
	}
	return NewServer(registry, store, handler, zerolog.Nop())
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["connections"])
}

func TestServer_TaskHistory(t *testing.T) {
	store := &fakeStore{records: map[string][]types.AnswerRecord{
		"cs101/t1": {
			{TaskID: "t1", UserID: 7, Answer: "x = 1", IsCorrect: true, CorrectCount: 1, MaxScore: 10},
			{TaskID: "t1", UserID: 7, Answer: "x = 2", IsCorrect: false, CorrectCount: 1, IncorrectCount: 1, MaxScore: 10},
		},
	}}
	srv := newTestServer(t, store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classrooms/cs101/tasks/t1/history?user_id=7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var records []types.AnswerRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "x = 1", records[0].Answer)
	assert.False(t, records[1].IsCorrect)
}

// The replay client must read history from the relay's own route; this
// pins the two surfaces to the same path shape.
func TestServer_TaskHistoryServesReplayClient(t *testing.T) {
	store := &fakeStore{records: map[string][]types.AnswerRecord{
		"cs101/t1": {
			{TaskID: "t1", UserID: 7, Answer: "x = 1", IsCorrect: true, CorrectCount: 1, MaxScore: 10},
			{TaskID: "t1", UserID: 7, Answer: "x = 2", IsCorrect: false, CorrectCount: 1, IncorrectCount: 1, MaxScore: 10},
		},
	}}
	srv := newTestServer(t, store)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := restapi.NewClient(ts.URL, "cs101", time.Second)
	records, err := client.TaskHistory(context.Background(), "t1", 7)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x = 1", records[0].Answer)
	assert.Equal(t, "x = 2", records[1].Answer)

	// No history logged yet still decodes as an empty list.
	records, err = client.TaskHistory(context.Background(), "t9", 7)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestServer_TaskHistoryEmptyIsList(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classrooms/cs101/tasks/t9/history?user_id=7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestServer_TaskHistoryValidation(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	tests := []struct {
		name string
		url  string
	}{
		{"missing user_id", "/api/classrooms/cs101/tasks/t1/history"},
		{"non-numeric user_id", "/api/classrooms/cs101/tasks/t1/history?user_id=abc"},
		{"non-positive user_id", "/api/classrooms/cs101/tasks/t1/history?user_id=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_TaskHistoryStoreFailure(t *testing.T) {
	srv := newTestServer(t, &fakeStore{err: errors.New("disk gone")})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classrooms/cs101/tasks/t1/history?user_id=7", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_TaskHistoryWithoutStore(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classrooms/cs101/tasks/t1/history?user_id=7", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
