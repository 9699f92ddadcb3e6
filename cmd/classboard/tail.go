package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"classboard/internal/config"
	"classboard/internal/connection"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

type tailOptions struct {
	endpoint    string
	classroomID string
	userID      int
	role        string
}

var tailOpts tailOptions

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Connect to a relay and print every received envelope",
	Long: `Tail joins a classroom as a participant and prints each envelope the
relay delivers, reconnecting with backoff when the connection drops.`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVarP(&tailOpts.endpoint, "endpoint", "e", "ws://localhost:8080/ws", "relay websocket endpoint")
	tailCmd.Flags().StringVar(&tailOpts.classroomID, "classroom", "", "classroom to join (required)")
	tailCmd.Flags().IntVarP(&tailOpts.userID, "user-id", "u", 0, "participant user id (required)")
	tailCmd.Flags().StringVarP(&tailOpts.role, "role", "r", string(types.RoleTeacher), "participant role: teacher or student")
	_ = tailCmd.MarkFlagRequired("classroom")
	_ = tailCmd.MarkFlagRequired("user-id")
}

func runTail(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cfg := config.LoadWithPrecedence(configPath)

	role := types.Role(tailOpts.role)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", tailOpts.role)
	}
	if tailOpts.userID <= 0 {
		return fmt.Errorf("user-id must be a positive integer")
	}

	endpoint, err := tailEndpoint(tailOpts)
	if err != nil {
		return err
	}

	manager := connection.NewManager(
		endpoint,
		connection.NewWebSocketDialer(),
		&tailNotifier{log: log},
		connection.Config{
			InitialBackoff: cfg.Reconnect.InitialBackoff,
			MaxBackoff:     cfg.Reconnect.MaxBackoff,
			MaxAttempts:    cfg.Reconnect.MaxAttempts,
			Watchdog:       cfg.Reconnect.Watchdog,
		},
		log,
	)
	manager.OnMessage(func(data []byte) {
		env, err := wire.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("undecodable envelope")
			return
		}
		fmt.Printf("%-16s task=%-12s sender=%-4d id=%s data=%v\n",
			env.RequestType, env.TaskID, env.SenderID, env.MessageID, env.Data)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("endpoint", endpoint).Msg("tailing relay")
	manager.Start(ctx)

	<-ctx.Done()
	manager.Stop()
	return nil
}

func tailEndpoint(opts tailOptions) (string, error) {
	u, err := url.Parse(opts.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", opts.endpoint, err)
	}
	q := u.Query()
	q.Set("classroom_id", opts.classroomID)
	q.Set("user_id", strconv.Itoa(opts.userID))
	q.Set("role", opts.role)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// tailNotifier surfaces connectivity transitions on the console.
type tailNotifier struct {
	log zerolog.Logger
}

func (n *tailNotifier) ConnectionRestored() { n.log.Info().Msg("connection restored") }
func (n *tailNotifier) ConnectionOffline() {
	n.log.Error().Msg("offline: reconnect budget exhausted")
}
func (n *tailNotifier) TransientError(message string) { n.log.Warn().Msg(message) }
