package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whispers-app/whispers/pkg/api"
	"github.com/whispers-app/whispers/pkg/config"
	"github.com/whispers-app/whispers/pkg/socket"
)

// ackTimeout bounds how long a one-shot command waits for the relay's answer
const ackTimeout = 10 * time.Second

var errNoUser = errors.New("no user id: pass --user or run 'whisper config set-user <id>'")

// session is one command's view of the relay: the REST client and, once
// connected, the process connection.
type session struct {
	userID  string
	api     *api.Client
	manager *socket.Manager
}

func newSession() (*session, error) {
	userID := config.GetString("relay.user_id")
	if userID == "" {
		return nil, errNoUser
	}
	return &session{
		userID:  userID,
		api:     api.NewFromConfig(),
		manager: socket.NewManager(socket.OptionsFromConfig(config.RelaySettings())),
	}, nil
}

func (s *session) connect(ctx context.Context) (*socket.Conn, error) {
	conn, err := s.manager.GetOrCreate(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("connecting to relay: %w", err)
	}
	return conn, nil
}

func (s *session) close() {
	_ = s.manager.Reset()
}

// settle waits until pending reaches zero or a failure notice arrives
type settle struct {
	changed chan struct{}
	failed  chan string
}

func newSettle() *settle {
	return &settle{
		changed: make(chan struct{}, 1),
		failed:  make(chan string, 1),
	}
}

func (s *settle) onChange() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *settle) onError(_ string, message string) {
	select {
	case s.failed <- message:
	default:
	}
}

func (s *settle) wait(ctx context.Context, pending func() int) error {
	ctx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	for pending() > 0 {
		select {
		case <-s.changed:
		case message := <-s.failed:
			return errors.New(message)
		case <-ctx.Done():
			return fmt.Errorf("relay did not answer within %s", ackTimeout)
		}
	}
	return nil
}
