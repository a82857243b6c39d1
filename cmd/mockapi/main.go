// mockapi is a local stand-in for the Mirror Play service, useful for
// developing the client without network access or burning daily quota.
// Scores are invented, transcriptions are canned, and -limit simulates
// the free-tier daily cap.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	addr  = flag.String("addr", ":8800", "listen address")
	limit = flag.Int("limit", 0, "reject scored requests with 429 after this many (0 = unlimited)")
)

type transcribeRequest struct {
	AudioBase64 string `json:"audioBase64"`
}

type rehearsalTurn struct {
	Message         string   `json:"message"`
	CurrentPhase    int      `json:"currentPhase"`
	EscalationLevel int      `json:"escalationLevel"`
	MessageHistory  []string `json:"messageHistory"`
	ScenarioID      string   `json:"scenarioId"`
}

type duoSession struct {
	ID         string       `json:"id"`
	ScenarioID string       `json:"scenarioId"`
	Status     string       `json:"status"`
	HostID     string       `json:"hostId"`
	PartnerID  string       `json:"partnerId,omitempty"`
	Turn       string       `json:"turn"`
	Messages   []duoMessage `json:"messages"`
	CreatedAt  time.Time    `json:"createdAt"`
}

type duoMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Score     int       `json:"score,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type server struct {
	scoredRequests int
	sessions       map[string]*duoSession
	watchers       map[string][]*websocket.Conn
	mu             sync.Mutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	flag.Parse()

	s := &server{
		sessions: make(map[string]*duoSession),
		watchers: make(map[string][]*websocket.Conn),
	}

	http.HandleFunc("/api/transcribe", s.handleTranscribe)
	http.HandleFunc("/api/practice/submit", s.handlePracticeSubmit)
	http.HandleFunc("/api/rehearsal/respond", s.handleRehearsal)
	http.HandleFunc("/api/duo/sessions", s.handleDuoCreate)
	http.HandleFunc("/api/duo/sessions/", s.handleDuoSession)
	http.HandleFunc("/api/progress", s.handleProgress)

	log.Printf("Mock Mirror Play API listening on %s", *addr)
	if *limit > 0 {
		log.Printf("Daily cap simulation: 429 after %d scored requests", *limit)
	}

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

// overLimit burns one scored request and reports whether the cap is hit
func (s *server) overLimit(w http.ResponseWriter) bool {
	if *limit <= 0 {
		return false
	}

	s.mu.Lock()
	s.scoredRequests++
	over := s.scoredRequests > *limit
	s.mu.Unlock()

	if over {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "limit_reached",
			"message": "daily practice limit reached",
		})
	}
	return over
}

func (s *server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.overLimit(w) {
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		http.Error(w, "Invalid base64 audio", http.StatusBadRequest)
		return
	}

	log.Printf("Transcribe request: %d audio bytes", len(audio))
	time.Sleep(150 * time.Millisecond)

	writeJSON(w, map[string]string{
		"text": "I understand where you're coming from, and I'd like to find a way forward together.",
	})
}

func (s *server) handlePracticeSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.overLimit(w) {
		return
	}

	writeJSON(w, map[string]any{
		"transcription": "I understand where you're coming from.",
		"score":         78,
		"feedback":      "Good pacing, clear intent. Try naming the impact explicitly.",
		"xpAwarded":     10,
	})
}

func (s *server) handleRehearsal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.overLimit(w) {
		return
	}

	var turn rehearsalTurn
	if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	log.Printf("Rehearsal turn (phase %d): %q", turn.CurrentPhase, turn.Message)

	nextPhase := turn.CurrentPhase + 1
	completed := nextPhase >= 4

	writeJSON(w, map[string]any{
		"reply":           "Okay. I hear that. What would you need from me to make this work?",
		"score":           70 + len(turn.Message)%25,
		"feedback":        "Steady tone. You held the boundary without escalating.",
		"xpAwarded":       15,
		"nextPhase":       nextPhase,
		"escalationLevel": turn.EscalationLevel,
		"completed":       completed,
	})
}

func (s *server) handleDuoCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ScenarioID string `json:"scenarioId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	session := &duoSession{
		ID:         uuid.New().String(),
		ScenarioID: body.ScenarioID,
		Status:     "pending-invite",
		HostID:     uuid.New().String(),
		Turn:       "host",
		Messages:   []duoMessage{},
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Printf("Duo session created: %s (scenario %s)", session.ID, session.ScenarioID)
	writeJSON(w, session)
}

// handleDuoSession routes /api/duo/sessions/{id}[/join|/messages|/complete|/live]
func (s *server) handleDuoSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/duo/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	s.mu.Lock()
	session, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, s.snapshot(id))

	case "join":
		s.mu.Lock()
		session.Status = "active"
		session.PartnerID = uuid.New().String()
		s.mu.Unlock()
		log.Printf("Partner joined session %s", id)
		s.broadcast(id)
		writeJSON(w, s.snapshot(id))

	case "messages":
		if s.overLimit(w) {
			return
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Bad request body", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		role := session.Turn
		session.Messages = append(session.Messages, duoMessage{
			Role:      role,
			Text:      body.Text,
			Score:     65 + len(body.Text)%30,
			Feedback:  "Acknowledged their point before making yours.",
			Timestamp: time.Now().UTC(),
		})
		if role == "host" {
			session.Turn = "partner"
		} else {
			session.Turn = "host"
		}
		s.mu.Unlock()

		s.broadcast(id)
		writeJSON(w, s.snapshot(id))

	case "complete":
		s.mu.Lock()
		session.Status = "completed"
		s.mu.Unlock()
		log.Printf("Duo session completed: %s", id)
		s.broadcast(id)
		writeJSON(w, s.snapshot(id))

	case "live":
		s.handleLive(w, r, id)

	default:
		http.NotFound(w, r)
	}
}

// handleLive upgrades to a websocket and pushes session snapshots on change
func (s *server) handleLive(w http.ResponseWriter, r *http.Request, id string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Live feed upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.watchers[id] = append(s.watchers[id], conn)
	s.mu.Unlock()

	log.Printf("Live feed attached to session %s", id)
}

// broadcast pushes the current snapshot to every live feed on the session,
// dropping connections that fail to write
func (s *server) broadcast(id string) {
	snapshot := s.snapshot(id)

	s.mu.Lock()
	conns := s.watchers[id]
	alive := conns[:0]
	for _, conn := range conns {
		if err := conn.WriteJSON(snapshot); err != nil {
			conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	s.watchers[id] = alive
	s.mu.Unlock()
}

// snapshot returns a copy of the session safe to encode outside the lock
func (s *server) snapshot(id string) *duoSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessions[id]
	out := *session
	out.Messages = append([]duoMessage(nil), session.Messages...)
	return &out
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"xp":         420,
		"level":      5,
		"streakDays": 7,
		"tier":       "free",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
