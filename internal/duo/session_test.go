package duo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
)

type fakeAPI struct {
	createCalls   int32
	joinCalls     int32
	getCalls      int32
	postCalls     int32
	completeCalls int32

	postErr error

	state api.DuoSession
}

func (f *fakeAPI) CreateDuoSession(ctx context.Context, scenarioID string) (*api.DuoSession, error) {
	atomic.AddInt32(&f.createCalls, 1)
	f.state = api.DuoSession{
		ID:         "sess-1",
		ScenarioID: scenarioID,
		Status:     StatusPendingInvite,
		HostID:     "host-1",
		Turn:       RoleHost,
		CreatedAt:  time.Now(),
	}
	return f.snapshot(), nil
}

func (f *fakeAPI) JoinDuoSession(ctx context.Context, sessionID string) (*api.DuoSession, error) {
	atomic.AddInt32(&f.joinCalls, 1)
	f.state.Status = StatusActive
	f.state.PartnerID = "partner-1"
	return f.snapshot(), nil
}

func (f *fakeAPI) GetDuoSession(ctx context.Context, sessionID string) (*api.DuoSession, error) {
	atomic.AddInt32(&f.getCalls, 1)
	return f.snapshot(), nil
}

func (f *fakeAPI) PostDuoMessage(ctx context.Context, sessionID, text string) (*api.DuoSession, error) {
	atomic.AddInt32(&f.postCalls, 1)
	if f.postErr != nil {
		return nil, f.postErr
	}
	role := f.state.Turn
	f.state.Messages = append(f.state.Messages, api.DuoMessage{
		Role: role, Text: text, Score: 75, Timestamp: time.Now(),
	})
	if role == RoleHost {
		f.state.Turn = RolePartner
	} else {
		f.state.Turn = RoleHost
	}
	return f.snapshot(), nil
}

func (f *fakeAPI) CompleteDuoSession(ctx context.Context, sessionID string) (*api.DuoSession, error) {
	atomic.AddInt32(&f.completeCalls, 1)
	f.state.Status = StatusCompleted
	return f.snapshot(), nil
}

func (f *fakeAPI) snapshot() *api.DuoSession {
	copy := f.state
	copy.Messages = append([]api.DuoMessage(nil), f.state.Messages...)
	return &copy
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeHostSession(t *testing.T, client *fakeAPI) *Session {
	t.Helper()

	session, err := Host(context.Background(), client, "difficult-feedback", testLogger())
	if err != nil {
		t.Fatalf("Failed to host session: %v", err)
	}

	// Partner joins server-side; the host sees it on refresh.
	if _, err := client.JoinDuoSession(context.Background(), session.ID()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return session
}

func TestHostStartsPendingInvite(t *testing.T) {
	client := &fakeAPI{}

	session, err := Host(context.Background(), client, "difficult-feedback", testLogger())
	if err != nil {
		t.Fatalf("Failed to host session: %v", err)
	}

	if session.Status() != StatusPendingInvite {
		t.Errorf("Expected pending-invite status, got %s", session.Status())
	}
	if session.Role() != RoleHost {
		t.Errorf("Expected host role, got %s", session.Role())
	}
	if session.MyTurn() {
		t.Error("Turn should not be claimable while pending invite")
	}
}

func TestSendAlternatesTurns(t *testing.T) {
	client := &fakeAPI{}
	session := activeHostSession(t, client)

	if !session.MyTurn() {
		t.Fatal("Host should own the first turn")
	}

	remote, err := session.Send(context.Background(), "I wanted to talk about the missed deadline.")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if remote.Turn != RolePartner {
		t.Errorf("Expected turn to pass to partner, got %s", remote.Turn)
	}
	if session.MyTurn() {
		t.Error("Host should not own the turn after sending")
	}
	if len(session.Messages()) != 1 {
		t.Errorf("Expected 1 message, got %d", len(session.Messages()))
	}
}

func TestSendOutOfTurnRejectedLocally(t *testing.T) {
	client := &fakeAPI{}
	session := activeHostSession(t, client)

	if _, err := session.Send(context.Background(), "First message"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	callsBefore := atomic.LoadInt32(&client.postCalls)

	_, err := session.Send(context.Background(), "Second message out of turn")
	if !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("Expected ErrNotYourTurn, got %v", err)
	}

	if atomic.LoadInt32(&client.postCalls) != callsBefore {
		t.Error("Out-of-turn submission must not reach the network")
	}

	stats := session.GetStats()
	if stats.RejectedOutOfTurn != 1 {
		t.Errorf("Expected 1 rejected submission, got %d", stats.RejectedOutOfTurn)
	}
}

func TestSendRejectedWhilePendingInvite(t *testing.T) {
	client := &fakeAPI{}

	session, err := Host(context.Background(), client, "difficult-feedback", testLogger())
	if err != nil {
		t.Fatalf("Failed to host session: %v", err)
	}

	if _, err := session.Send(context.Background(), "Too early"); err == nil {
		t.Fatal("Expected error sending before the session is active")
	}
	if atomic.LoadInt32(&client.postCalls) != 0 {
		t.Error("Pending-invite submission must not reach the network")
	}
}

func TestCanCompleteRequiresMinimumMessages(t *testing.T) {
	client := &fakeAPI{}
	session := activeHostSession(t, client)

	rounds := []string{"I wanted to talk about the missed deadline.", "I hear you, and I still need it today."}
	for i, text := range rounds {
		if session.CanComplete() {
			t.Fatalf("CanComplete should be false with %d messages", len(session.Messages()))
		}
		if _, err := session.Send(context.Background(), text); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		// Partner replies server-side, handing the turn back to the host.
		if _, err := client.PostDuoMessage(context.Background(), session.ID(), "partner reply"); err != nil {
			t.Fatalf("Partner message failed: %v", err)
		}
		if _, err := session.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
	}

	if len(session.Messages()) != 2*len(rounds) {
		t.Fatalf("Expected %d messages, got %d", 2*len(rounds), len(session.Messages()))
	}
	if !session.CanComplete() {
		t.Errorf("CanComplete should be true with %d messages", len(session.Messages()))
	}
}

func TestCompleteTransitionsSession(t *testing.T) {
	client := &fakeAPI{}
	session := activeHostSession(t, client)

	remote, err := session.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if remote.Status != StatusCompleted {
		t.Errorf("Expected completed status, got %s", remote.Status)
	}
	if session.Status() != StatusCompleted {
		t.Errorf("Session did not mirror completed status: %s", session.Status())
	}

	if _, err := session.Complete(context.Background()); err == nil {
		t.Fatal("Expected error completing an already-completed session")
	}
	if atomic.LoadInt32(&client.completeCalls) != 1 {
		t.Error("Second completion must not reach the network")
	}
}

func TestJoinActivatesSession(t *testing.T) {
	client := &fakeAPI{}
	if _, err := client.CreateDuoSession(context.Background(), "difficult-feedback"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	session, err := Join(context.Background(), client, "sess-1", testLogger())
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if session.Status() != StatusActive {
		t.Errorf("Expected active status after join, got %s", session.Status())
	}
	if session.Role() != RolePartner {
		t.Errorf("Expected partner role, got %s", session.Role())
	}
	if session.MyTurn() {
		t.Error("Host owns the first turn, not the joining partner")
	}
}

func TestLiveFeedDeliversUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/duo/sessions/sess-1/live") {
			t.Errorf("Unexpected live feed path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header: %s", auth)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		updates := []api.DuoSession{
			{ID: "sess-1", Status: StatusActive, Turn: RoleHost, Messages: []api.DuoMessage{
				{Role: RolePartner, Text: "Sounds fair to me."},
			}},
			{ID: "sess-1", Status: StatusCompleted, Turn: RoleHost},
		}
		for i := range updates {
			if err := conn.WriteJSON(&updates[i]); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := &fakeAPI{}
	session := activeHostSession(t, client)

	feed, err := OpenLiveFeed(context.Background(), server.URL, "test-key", session, testLogger())
	if err != nil {
		t.Fatalf("Failed to open live feed: %v", err)
	}
	defer feed.Close()

	var received []*api.DuoSession
	timeout := time.After(5 * time.Second)
	for {
		select {
		case update, ok := <-feed.Updates():
			if !ok {
				if len(received) != 2 {
					t.Fatalf("Expected 2 updates before close, got %d", len(received))
				}
				if received[0].Messages[0].Text != "Sounds fair to me." {
					t.Errorf("Unexpected first update: %+v", received[0])
				}
				if session.Status() != StatusCompleted {
					t.Errorf("Session did not mirror the pushed completion: %s", session.Status())
				}
				return
			}
			received = append(received, update)
		case <-timeout:
			t.Fatal("Timed out waiting for live feed updates")
		}
	}
}
