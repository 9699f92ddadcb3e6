// Package database persists the relay's envelope log in SQLite. All
// writes funnel through a single goroutine; SQLite handles concurrent
// reads but serialized writes avoid lock contention entirely.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"classboard/pkg/types"
	"classboard/pkg/wire"
)

// Config holds the SQLite settings.
type Config struct {
	Path            string        `json:"path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	// RetryDelay is the pause before the single retry of a failed write.
	RetryDelay   time.Duration `json:"retry_delay"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Path:            "classboard.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		RetryDelay:      5 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS envelopes (
	id           TEXT PRIMARY KEY,
	classroom_id TEXT NOT NULL,
	request_type TEXT NOT NULL,
	task_id      TEXT NOT NULL,
	sender_id    INTEGER NOT NULL,
	receivers    TEXT NOT NULL,
	data         TEXT,
	logged_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_envelopes_task
	ON envelopes (classroom_id, task_id, sender_id);
`

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Manager implements interfaces.EnvelopeStore on SQLite.
type Manager struct {
	db      *sql.DB
	cfg     Config
	log     zerolog.Logger
	writeCh chan writeOperation
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewManager(cfg Config, log zerolog.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	m := &Manager{
		db:      db,
		cfg:     cfg,
		log:     log.With().Str("component", "database").Logger(),
		writeCh: make(chan writeOperation, 100),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

// writeLoop serializes all writes. A failed write is retried exactly once
// after RetryDelay; the second failure is returned to the caller.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeCh:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn().Err(err).Dur("retry_in", m.cfg.RetryDelay).Msg("write failed, retrying")
				time.Sleep(m.cfg.RetryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error().Err(err).Msg("write failed after retry")
				}
			}
			op.result <- err
		case <-m.done:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeCh <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(m.cfg.WriteTimeout):
		return ErrWriteTimeout
	case <-m.done:
		return ErrStoreClosed
	}
}

// LogEnvelope appends one relayed envelope. The envelope's message id is
// the primary key, so a redelivered envelope is silently ignored.
func (m *Manager) LogEnvelope(ctx context.Context, classroomID string, env *wire.Envelope) error {
	receivers, err := json.Marshal(env.Receivers)
	if err != nil {
		return fmt.Errorf("marshal receivers: %w", err)
	}
	var data []byte
	if env.Data != nil {
		if data, err = json.Marshal(env.Data); err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
	}

	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR IGNORE INTO envelopes
				(id, classroom_id, request_type, task_id, sender_id, receivers, data, logged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			env.MessageID,
			classroomID,
			env.RequestType,
			env.TaskID,
			env.SenderID,
			string(receivers),
			nullableString(data),
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert envelope: %w", err)
		}
		return nil
	})
}

// TaskHistory returns one student's logged answers for a task in arrival
// order. Only task-answer envelopes carry answer payloads.
func (m *Manager) TaskHistory(ctx context.Context, classroomID, taskID string, userID int) ([]types.AnswerRecord, error) {
	query := `
		SELECT data
		FROM envelopes
		WHERE classroom_id = ? AND task_id = ? AND sender_id = ? AND request_type = ?
		ORDER BY rowid ASC
	`
	rows, err := m.db.QueryContext(ctx, query, classroomID, taskID, userID, wire.RequestTaskAnswer)
	if err != nil {
		return nil, fmt.Errorf("query task history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.AnswerRecord
	for rows.Next() {
		var data sql.NullString
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan envelope row: %w", err)
		}
		if !data.Valid {
			continue
		}

		var payload struct {
			Answer         interface{} `json:"answer"`
			IsCorrect      bool        `json:"is_correct"`
			CorrectCount   int         `json:"correct_count"`
			IncorrectCount int         `json:"incorrect_count"`
			MaxScore       int         `json:"max_score"`
		}
		if err := json.Unmarshal([]byte(data.String), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal answer payload: %w", err)
		}
		records = append(records, types.AnswerRecord{
			TaskID:         taskID,
			UserID:         userID,
			Answer:         payload.Answer,
			IsCorrect:      payload.IsCorrect,
			CorrectCount:   payload.CorrectCount,
			IncorrectCount: payload.IncorrectCount,
			MaxScore:       payload.MaxScore,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate envelope rows: %w", err)
	}
	return records, nil
}

// HealthCheck validates connectivity for the health endpoint.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close drains the write loop and closes the connection. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullableString(data []byte) interface{} {
	if data == nil {
		return nil
	}
	return string(data)
}
