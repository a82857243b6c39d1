package rehearsal

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/capture"
)

// PipelinePhase is the observable submit-pipeline state, distinct from the
// scenario phase the server tracks. The UI renders each phase differently.
type PipelinePhase int

const (
	PhaseIdle PipelinePhase = iota
	PhaseRecording
	PhaseTranscribing
)

// String returns a human-readable phase name
func (p PipelinePhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseTranscribing:
		return "transcribing"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// APIClient is the slice of the remote API the rehearsal flow needs
type APIClient interface {
	Transcribe(ctx context.Context, req *api.TranscribeRequest) (*api.TranscribeResponse, error)
	RespondRehearsal(ctx context.Context, req *api.RehearsalTurn) (*api.RehearsalReply, error)
}

// PipelineMetrics receives transcription pipeline observations. Requests are
// counted only when a Transcribe call is actually issued, not when a turn
// merely starts recording.
type PipelineMetrics interface {
	RecordTranscriptionRequest()
	RecordTranscriptionSuccess(durationSeconds float64)
	RecordTranscriptionFailure(durationSeconds float64)
}

// Message is one entry in the rehearsal exchange
type Message struct {
	Role      string    `json:"role"` // "user" or "coach"
	Text      string    `json:"text"`
	Score     int       `json:"score,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the state of one rehearsal scenario run. The scenario phase,
// escalation level, and completion flag are mutated only by server responses;
// the client never computes scores.
type Session struct {
	scenarioID string
	client     APIClient
	recorder   *capture.Recorder
	logger     *slog.Logger
	metrics    PipelineMetrics

	phase           PipelinePhase
	currentPhase    int
	escalationLevel int
	completed       bool
	messages        []Message
	totalXP         int

	finalized chan *capture.Recording

	// Statistics
	turnsSubmitted        uint64
	transcriptionFailures uint64

	mu sync.RWMutex
}

// SessionStats represents rehearsal session statistics for monitoring
type SessionStats struct {
	ScenarioID            string `json:"scenario_id"`
	Phase                 string `json:"phase"`
	CurrentPhase          int    `json:"current_phase"`
	EscalationLevel       int    `json:"escalation_level"`
	Completed             bool   `json:"completed"`
	Messages              int    `json:"messages"`
	TotalXP               int    `json:"total_xp"`
	TurnsSubmitted        uint64 `json:"turns_submitted"`
	TranscriptionFailures uint64 `json:"transcription_failures"`
}

// NewSession creates a rehearsal session and its recorder. The recorder's
// auto-stop is wired into the session so a silence-finalized take flows
// straight into submission.
func NewSession(scenarioID string, client APIClient, recorderConfig capture.Config, logger *slog.Logger) (*Session, error) {
	if scenarioID == "" {
		return nil, fmt.Errorf("scenario ID cannot be empty")
	}

	if client == nil {
		return nil, fmt.Errorf("API client cannot be nil")
	}

	s := &Session{
		scenarioID: scenarioID,
		client:     client,
		logger:     logger,
		finalized:  make(chan *capture.Recording, 1),
	}

	recorderConfig.OnAutoStop = s.handleAutoStop
	recorder, err := capture.NewRecorder(recorderConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	s.recorder = recorder

	return s, nil
}

// SetMetrics attaches a transcription metrics sink. Optional; a nil sink
// disables observation.
func (s *Session) SetMetrics(m PipelineMetrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// handleAutoStop receives the silence-finalized recording from the recorder
func (s *Session) handleAutoStop(recording *capture.Recording) {
	select {
	case s.finalized <- recording:
	default:
		s.logger.Warn("Dropping finalized recording, a previous one is still pending",
			slog.String("recording_id", recording.ID),
		)
	}
}

// RecordAndRespond runs one spoken turn end to end: start recording, wait for
// the silence auto-stop (or an explicit StopRecording call), transcribe, and
// submit the transcript. Returns the server reply and the transcript used.
func (s *Session) RecordAndRespond(ctx context.Context) (*api.RehearsalReply, string, error) {
	if s.Completed() {
		return nil, "", fmt.Errorf("session already completed")
	}

	// A cancelled turn can race its own auto-stop: finalization may deposit
	// the take after the ctx.Done branch has already returned. Anything
	// still buffered belongs to a previous turn and must not be submitted
	// as this one.
	s.drainStale()

	s.setPhase(PhaseRecording)

	if err := s.recorder.Start(ctx); err != nil {
		s.setPhase(PhaseIdle)
		return nil, "", fmt.Errorf("failed to start recording: %w", err)
	}

	select {
	case recording := <-s.finalized:
		return s.SubmitRecording(ctx, recording)

	case <-ctx.Done():
		// Teardown path: release the microphone, discard the take.
		if _, err := s.recorder.Stop(); err != nil && err != capture.ErrNotRecording {
			s.logger.Warn("Failed to stop recorder on cancellation", slog.String("error", err.Error()))
		}
		s.setPhase(PhaseIdle)
		return nil, "", ctx.Err()
	}
}

// drainStale discards any recording left over from an earlier turn
func (s *Session) drainStale() {
	select {
	case stale := <-s.finalized:
		s.logger.Warn("Discarding stale recording from a previous turn",
			slog.String("recording_id", stale.ID),
		)
	default:
	}
}

// StopRecording ends the active take by explicit user action and hands the
// finalized payload to the pending RecordAndRespond call
func (s *Session) StopRecording() error {
	recording, err := s.recorder.Stop()
	if err != nil {
		return err
	}

	s.handleAutoStop(recording)
	return nil
}

// SubmitRecording transcribes a finalized take and feeds the transcript into
// the same message path a typed response uses. On failure the payload is
// discarded: a fresh take is required before retrying.
func (s *Session) SubmitRecording(ctx context.Context, recording *capture.Recording) (*api.RehearsalReply, string, error) {
	if recording == nil || len(recording.AudioData) == 0 {
		s.setPhase(PhaseIdle)
		return nil, "", fmt.Errorf("no recording to submit")
	}

	s.setPhase(PhaseTranscribing)

	encoded := base64.StdEncoding.EncodeToString(recording.AudioData)

	s.mu.RLock()
	sink := s.metrics
	s.mu.RUnlock()

	if sink != nil {
		sink.RecordTranscriptionRequest()
	}
	requestedAt := time.Now()

	transcript, err := s.client.Transcribe(ctx, &api.TranscribeRequest{AudioBase64: encoded})
	if err != nil {
		if sink != nil {
			sink.RecordTranscriptionFailure(time.Since(requestedAt).Seconds())
		}

		s.mu.Lock()
		s.transcriptionFailures++
		s.mu.Unlock()
		s.setPhase(PhaseIdle)

		s.logger.Warn("Transcription failed, recording discarded",
			slog.String("recording_id", recording.ID),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("transcription failed: %w", err)
	}

	if sink != nil {
		sink.RecordTranscriptionSuccess(time.Since(requestedAt).Seconds())
	}

	reply, err := s.Respond(ctx, transcript.Text)
	if err != nil {
		return nil, transcript.Text, err
	}

	return reply, transcript.Text, nil
}

// Respond submits one textual turn, typed or transcribed, and applies the
// server's reply. History is committed only when the server accepts the turn.
func (s *Session) Respond(ctx context.Context, text string) (*api.RehearsalReply, error) {
	if text == "" {
		s.setPhase(PhaseIdle)
		return nil, fmt.Errorf("response text cannot be empty")
	}

	s.mu.RLock()
	turn := &api.RehearsalTurn{
		Message:         text,
		CurrentPhase:    s.currentPhase,
		EscalationLevel: s.escalationLevel,
		MessageHistory:  s.historyLocked(),
		ScenarioID:      s.scenarioID,
	}
	s.mu.RUnlock()

	reply, err := s.client.RespondRehearsal(ctx, turn)
	if err != nil {
		s.setPhase(PhaseIdle)
		return nil, fmt.Errorf("rehearsal response failed: %w", err)
	}

	now := time.Now()

	s.mu.Lock()
	s.messages = append(s.messages,
		Message{Role: "user", Text: text, Score: reply.Score, Feedback: reply.Feedback, Timestamp: now},
		Message{Role: "coach", Text: reply.Reply, Timestamp: now},
	)
	s.currentPhase = reply.NextPhase
	s.escalationLevel = reply.EscalationLevel
	s.completed = reply.Completed
	s.totalXP += reply.XPAwarded
	s.turnsSubmitted++
	s.phase = PhaseIdle
	s.mu.Unlock()

	s.logger.Info("Rehearsal turn scored",
		slog.String("scenario_id", s.scenarioID),
		slog.Int("score", reply.Score),
		slog.Int("xp_awarded", reply.XPAwarded),
		slog.Int("next_phase", reply.NextPhase),
		slog.Bool("completed", reply.Completed),
	)

	return reply, nil
}

// Phase returns the current submit-pipeline phase
func (s *Session) Phase() PipelinePhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Completed reports whether the server has marked the scenario complete
func (s *Session) Completed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed
}

// Messages returns a snapshot of the exchange so far
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Level returns the recorder's current loudness for waveform display
func (s *Session) Level() float64 {
	return s.recorder.Level()
}

// Elapsed returns the duration captured so far in the active take
func (s *Session) Elapsed() time.Duration {
	return s.recorder.Elapsed()
}

// GetStats returns current session statistics
func (s *Session) GetStats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStats{
		ScenarioID:            s.scenarioID,
		Phase:                 s.phase.String(),
		CurrentPhase:          s.currentPhase,
		EscalationLevel:       s.escalationLevel,
		Completed:             s.completed,
		Messages:              len(s.messages),
		TotalXP:               s.totalXP,
		TurnsSubmitted:        s.turnsSubmitted,
		TranscriptionFailures: s.transcriptionFailures,
	}
}

// RecorderStats returns the underlying recorder's statistics
func (s *Session) RecorderStats() capture.RecorderStats {
	return s.recorder.GetStats()
}

func (s *Session) setPhase(phase PipelinePhase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

// historyLocked flattens the exchange into the wire form. Caller holds the
// read lock.
func (s *Session) historyLocked() []string {
	history := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		history = append(history, fmt.Sprintf("%s: %s", m.Role, m.Text))
	}
	return history
}
