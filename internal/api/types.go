package api

import (
	"time"
)

// TranscribeRequest carries one finalized recording, base64-encoded for
// transmission
type TranscribeRequest struct {
	AudioBase64 string `json:"audioBase64"`
}

// TranscribeResponse is the transcript returned by the server
type TranscribeResponse struct {
	Text string `json:"text"`
}

// PracticeSubmission submits a recorded practice take for scoring
type PracticeSubmission struct {
	AudioBase64 string  `json:"audioBase64"`
	Duration    float64 `json:"duration"` // seconds
	Prompt      string  `json:"prompt"`
	Category    string  `json:"category"`
}

// PracticeResult is the server's verdict on a practice take. Scoring is
// entirely server-side; the client only renders these values.
type PracticeResult struct {
	Score      int    `json:"score"`
	Feedback   string `json:"feedback"`
	XPAwarded  int    `json:"xpAwarded"`
	StreakDays int    `json:"streakDays"`
}

// RehearsalTurn carries one user message plus the session context the
// server needs to continue the scenario
type RehearsalTurn struct {
	Message         string   `json:"message"`
	CurrentPhase    int      `json:"currentPhase"`
	EscalationLevel int      `json:"escalationLevel"`
	MessageHistory  []string `json:"messageHistory"`
	ScenarioID      string   `json:"scenarioId,omitempty"`
}

// RehearsalReply is the server's response to a rehearsal turn
type RehearsalReply struct {
	Reply           string `json:"reply"`
	Score           int    `json:"score"`
	Feedback        string `json:"feedback"`
	XPAwarded       int    `json:"xpAwarded"`
	NextPhase       int    `json:"nextPhase"`
	EscalationLevel int    `json:"escalationLevel"`
	Completed       bool   `json:"completed"`
}

// DuoSession is the server-side view of a shared duo-practice session
type DuoSession struct {
	ID         string       `json:"id"`
	ScenarioID string       `json:"scenarioId"`
	Status     string       `json:"status"` // "pending-invite", "active", "completed"
	HostID     string       `json:"hostId"`
	PartnerID  string       `json:"partnerId,omitempty"`
	Turn       string       `json:"turn"` // "host" or "partner"
	Messages   []DuoMessage `json:"messages"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// DuoMessage is one participant's turn in a duo-practice exchange
type DuoMessage struct {
	Role      string    `json:"role"` // "host" or "partner"
	Text      string    `json:"text"`
	Score     int       `json:"score,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is the user's server-tracked progression
type Progress struct {
	XP         int    `json:"xp"`
	Level      int    `json:"level"`
	StreakDays int    `json:"streakDays"`
	Tier       string `json:"tier"` // "free", "plus", "pro"
}
