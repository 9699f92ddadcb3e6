// Package client wires the synchronization core together for one browser
// session equivalent: session context, connection manager, router,
// exercise registry, answer pipeline, and viewer. It exposes the surface
// the exercise UI layer calls.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"classboard/internal/answersync"
	"classboard/internal/connection"
	"classboard/internal/exercise"
	"classboard/internal/restapi"
	"classboard/internal/router"
	"classboard/internal/session"
	"classboard/internal/viewer"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

// Options configures one classroom client.
type Options struct {
	// RelayEndpoint is the websocket URL of the message relay.
	RelayEndpoint string
	// ClassroomID scopes the history API; it must match the classroom the
	// relay endpoint joins.
	ClassroomID string
	// BackendURL is the base URL of the submission REST API.
	BackendURL string
	// HistoryURL is the base URL of the relay's HTTP surface, which serves
	// answer history from its envelope log. Defaults to BackendURL.
	HistoryURL string

	Role   types.Role
	UserID int
	Mode   types.Mode

	// Handlers are the session-level UI callbacks; exercise handlers are
	// mounted separately per task.
	Handlers router.PageHandlers
	Notifier interfaces.Notifier
	Progress interfaces.ProgressSink

	Connection  connection.Config
	HTTPTimeout time.Duration
	Logger      zerolog.Logger

	// Test seams; production wiring is used when nil.
	Dialer     interfaces.Dialer
	Submission interfaces.SubmissionAPI
	History    interfaces.HistoryAPI
}

// Client is one connected classroom participant.
type Client struct {
	session  *session.Context
	registry *exercise.Registry
	manager  *connection.Manager
	router   *router.Router
	answers  *answersync.AnswerSync
	viewer   *viewer.ViewerState
	log      zerolog.Logger
}

func New(opts Options) (*Client, error) {
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", opts.Role)
	}
	if opts.Mode == "" {
		opts.Mode = types.ModeClassroom
	}
	if opts.Connection.InitialBackoff <= 0 {
		opts.Connection = connection.DefaultConfig()
	}
	if opts.Dialer == nil {
		opts.Dialer = connection.NewWebSocketDialer()
	}
	if opts.Submission == nil {
		opts.Submission = restapi.NewClient(opts.BackendURL, opts.ClassroomID, opts.HTTPTimeout)
	}
	if opts.History == nil {
		historyURL := opts.HistoryURL
		if historyURL == "" {
			historyURL = opts.BackendURL
		}
		opts.History = restapi.NewClient(historyURL, opts.ClassroomID, opts.HTTPTimeout)
	}

	log := opts.Logger.With().
		Str("role", string(opts.Role)).
		Int("user_id", opts.UserID).
		Logger()

	sess := session.NewContext(opts.Role, opts.UserID, opts.Mode)
	registry := exercise.NewRegistry()
	manager := connection.NewManager(opts.RelayEndpoint, opts.Dialer, opts.Notifier, opts.Connection, log)
	rt := router.NewRouter(sess, manager, registry, opts.Progress, opts.Handlers, log)

	// Decode failures are logged and skipped; a malformed inbound message
	// must not take the read loop down.
	manager.OnMessage(func(data []byte) {
		env, err := wire.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("discarding undecodable message")
			return
		}
		rt.Dispatch(env)
	})

	return &Client{
		session:  sess,
		registry: registry,
		manager:  manager,
		router:   rt,
		answers:  answersync.New(sess, opts.Submission, rt, opts.Progress, opts.Notifier, log),
		viewer:   viewer.New(sess, registry, opts.History, log),
		log:      log,
	}, nil
}

// Start opens the relay connection.
func (c *Client) Start(ctx context.Context) {
	c.manager.Start(ctx)
}

// Stop closes the connection cleanly; no reconnection follows.
func (c *Client) Stop() {
	c.manager.Stop()
}

// NotifyOnline forwards the host's network-online transition to the
// connection manager.
func (c *Client) NotifyOnline() {
	c.manager.NotifyOnline()
}

// Mount registers the exercise handler for a task currently on the page.
func (c *Client) Mount(taskID string, h interfaces.ExerciseHandler) {
	c.registry.Mount(taskID, h)
}

// Unmount removes a task's handler when it leaves the page.
func (c *Client) Unmount(taskID string) {
	c.registry.Unmount(taskID)
}

// SubmitAnswer persists one answer and mirrors it to the peer view; see
// the answersync package for the pipeline's failure semantics.
func (c *Client) SubmitAnswer(ctx context.Context, taskID string, answer interface{}, mode types.SubmitMode) *types.SubmitResult {
	return c.answers.Submit(ctx, taskID, answer, mode)
}

// SendMessage shapes and sends one envelope with the given receivers hint.
func (c *Client) SendMessage(requestType, taskID string, data map[string]interface{}, hint wire.Receivers) error {
	return c.router.Send(requestType, taskID, data, hint)
}

// SelectViewedStudent switches which student's work the teacher view
// mirrors and replays all mounted exercises from history.
func (c *Client) SelectViewedStudent(ctx context.Context, ids ...int) {
	c.viewer.SelectViewedStudent(ctx, ids...)
}

// DisplayUserStats replays a single exercise for the currently viewed
// student.
func (c *Client) DisplayUserStats(ctx context.Context, taskID string) {
	c.viewer.ReplayTask(ctx, taskID)
}

// Session exposes the session context for read access.
func (c *Client) Session() *session.Context {
	return c.session
}
