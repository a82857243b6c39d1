package duo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
)

// Session status values mirrored from the server
const (
	StatusPendingInvite = "pending-invite"
	StatusActive        = "active"
	StatusCompleted     = "completed"
)

// Participant roles
const (
	RoleHost    = "host"
	RolePartner = "partner"
)

// MinMessagesToComplete is the advisory floor before either party may end
// the session. The server enforces its own rules; this only gates the UI.
const MinMessagesToComplete = 4

// ErrNotYourTurn is returned when a message is submitted out of turn. The
// submission never reaches the network.
var ErrNotYourTurn = fmt.Errorf("not your turn")

// APIClient is the slice of the remote API the duo flow needs
type APIClient interface {
	CreateDuoSession(ctx context.Context, scenarioID string) (*api.DuoSession, error)
	JoinDuoSession(ctx context.Context, sessionID string) (*api.DuoSession, error)
	GetDuoSession(ctx context.Context, sessionID string) (*api.DuoSession, error)
	PostDuoMessage(ctx context.Context, sessionID, text string) (*api.DuoSession, error)
	CompleteDuoSession(ctx context.Context, sessionID string) (*api.DuoSession, error)
}

// Session is the local view of one duo-practice session. All state mutation
// flows from server responses; the only local decision is rejecting an
// out-of-turn submission before it is sent.
type Session struct {
	client APIClient
	logger *slog.Logger
	role   string

	remote *api.DuoSession

	// Statistics
	messagesSent      uint64
	rejectedOutOfTurn uint64
	refreshes         uint64

	mu sync.RWMutex
}

// SessionStats represents duo session statistics for monitoring
type SessionStats struct {
	SessionID         string `json:"session_id"`
	Role              string `json:"role"`
	Status            string `json:"status"`
	Turn              string `json:"turn"`
	Messages          int    `json:"messages"`
	MessagesSent      uint64 `json:"messages_sent"`
	RejectedOutOfTurn uint64 `json:"rejected_out_of_turn"`
	Refreshes         uint64 `json:"refreshes"`
}

// Host creates a new duo session for a scenario. The caller becomes the host
// and the session waits in pending-invite until a partner joins.
func Host(ctx context.Context, client APIClient, scenarioID string, logger *slog.Logger) (*Session, error) {
	if scenarioID == "" {
		return nil, fmt.Errorf("scenario ID cannot be empty")
	}

	remote, err := client.CreateDuoSession(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to create duo session: %w", err)
	}

	logger.Info("Duo session created",
		slog.String("session_id", remote.ID),
		slog.String("scenario_id", scenarioID),
	)

	return &Session{client: client, logger: logger, role: RoleHost, remote: remote}, nil
}

// Join attaches the caller to an existing session as the partner and
// activates it
func Join(ctx context.Context, client APIClient, sessionID string, logger *slog.Logger) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	remote, err := client.JoinDuoSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to join duo session: %w", err)
	}

	logger.Info("Joined duo session",
		slog.String("session_id", remote.ID),
		slog.String("status", remote.Status),
	)

	return &Session{client: client, logger: logger, role: RolePartner, remote: remote}, nil
}

// Send submits one message for the caller's turn. Out-of-turn and
// wrong-status submissions are rejected locally without a network call.
func (s *Session) Send(ctx context.Context, text string) (*api.DuoSession, error) {
	if text == "" {
		return nil, fmt.Errorf("message text cannot be empty")
	}

	s.mu.Lock()
	if s.remote.Status != StatusActive {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is %s, not active", s.remote.Status)
	}
	if s.remote.Turn != s.role {
		s.rejectedOutOfTurn++
		s.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	sessionID := s.remote.ID
	s.mu.Unlock()

	remote, err := s.client.PostDuoMessage(ctx, sessionID, text)
	if err != nil {
		return nil, fmt.Errorf("failed to post duo message: %w", err)
	}

	s.mu.Lock()
	s.remote = remote
	s.messagesSent++
	s.mu.Unlock()

	s.logger.Info("Duo message sent",
		slog.String("session_id", sessionID),
		slog.String("next_turn", remote.Turn),
		slog.Int("messages", len(remote.Messages)),
	)

	return remote, nil
}

// Refresh pulls the latest server state, picking up the partner's messages
// and status changes
func (s *Session) Refresh(ctx context.Context) (*api.DuoSession, error) {
	s.mu.RLock()
	sessionID := s.remote.ID
	s.mu.RUnlock()

	remote, err := s.client.GetDuoSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh duo session: %w", err)
	}

	s.mu.Lock()
	s.remote = remote
	s.refreshes++
	s.mu.Unlock()

	return remote, nil
}

// CanComplete reports whether the exchange is long enough to end. Either
// party may complete once the floor is met.
func (s *Session) CanComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote.Status == StatusActive && len(s.remote.Messages) >= MinMessagesToComplete
}

// Complete ends the session. The server decides final scoring and XP.
func (s *Session) Complete(ctx context.Context) (*api.DuoSession, error) {
	s.mu.RLock()
	sessionID := s.remote.ID
	status := s.remote.Status
	s.mu.RUnlock()

	if status == StatusCompleted {
		return nil, fmt.Errorf("session already completed")
	}

	remote, err := s.client.CompleteDuoSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete duo session: %w", err)
	}

	s.mu.Lock()
	s.remote = remote
	s.mu.Unlock()

	s.logger.Info("Duo session completed",
		slog.String("session_id", sessionID),
		slog.Int("messages", len(remote.Messages)),
	)

	return remote, nil
}

// applyRemote replaces the mirrored server state; used by the live feed
func (s *Session) applyRemote(remote *api.DuoSession) {
	s.mu.Lock()
	s.remote = remote
	s.mu.Unlock()
}

// ID returns the server-assigned session identifier
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote.ID
}

// Role returns the caller's role in the session
func (s *Session) Role() string {
	return s.role
}

// Status returns the mirrored session status
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote.Status
}

// MyTurn reports whether the caller currently owns the turn
func (s *Session) MyTurn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote.Status == StatusActive && s.remote.Turn == s.role
}

// Messages returns a snapshot of the exchange so far
func (s *Session) Messages() []api.DuoMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.DuoMessage, len(s.remote.Messages))
	copy(out, s.remote.Messages)
	return out
}

// GetStats returns current session statistics
func (s *Session) GetStats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStats{
		SessionID:         s.remote.ID,
		Role:              s.role,
		Status:            s.remote.Status,
		Turn:              s.remote.Turn,
		Messages:          len(s.remote.Messages),
		MessagesSent:      s.messagesSent,
		RejectedOutOfTurn: s.rejectedOutOfTurn,
		Refreshes:         s.refreshes,
	}
}
