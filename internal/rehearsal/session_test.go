package rehearsal

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/capture"
)

type fakeAPI struct {
	transcribeCalls int32
	respondCalls    int32

	transcribeErr error
	respondErr    error

	transcript string
	reply      api.RehearsalReply

	lastTurn       atomic.Pointer[api.RehearsalTurn]
	lastTranscribe atomic.Pointer[api.TranscribeRequest]
}

func (f *fakeAPI) Transcribe(ctx context.Context, req *api.TranscribeRequest) (*api.TranscribeResponse, error) {
	atomic.AddInt32(&f.transcribeCalls, 1)
	f.lastTranscribe.Store(req)
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return &api.TranscribeResponse{Text: f.transcript}, nil
}

func (f *fakeAPI) RespondRehearsal(ctx context.Context, req *api.RehearsalTurn) (*api.RehearsalReply, error) {
	atomic.AddInt32(&f.respondCalls, 1)
	f.lastTurn.Store(req)
	if f.respondErr != nil {
		return nil, f.respondErr
	}
	reply := f.reply
	return &reply, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice emits silent frames so the silence detector stops the take on
// its own. Read keeps a small delay so the loop ticks like a real stream.
type fakeDevice struct {
	frameSize int
	openErr   error
	closed    atomic.Bool
}

func (d *fakeDevice) Open(sampleRate, frameSize int) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.frameSize = frameSize
	return nil
}

func (d *fakeDevice) Read() ([]int16, error) {
	if d.closed.Load() {
		return nil, io.EOF
	}
	time.Sleep(2 * time.Millisecond)
	return make([]int16, d.frameSize), nil
}

func (d *fakeDevice) Pause() error  { return nil }
func (d *fakeDevice) Resume() error { return nil }

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

// fakeMetrics counts transcription pipeline observations
type fakeMetrics struct {
	requests  int32
	successes int32
	failures  int32
}

func (m *fakeMetrics) RecordTranscriptionRequest()        { atomic.AddInt32(&m.requests, 1) }
func (m *fakeMetrics) RecordTranscriptionSuccess(float64) { atomic.AddInt32(&m.successes, 1) }
func (m *fakeMetrics) RecordTranscriptionFailure(float64) { atomic.AddInt32(&m.failures, 1) }

func newTestSession(t *testing.T, client APIClient) *Session {
	t.Helper()

	session, err := NewSession("boundary-setting", client, capture.Config{
		SampleRate:       16000,
		FrameSize:        256,
		SilenceThreshold: 50 * time.Millisecond,
		DeviceFactory: func() capture.Device {
			t.Fatal("Test did not expect the recorder to open a device")
			return nil
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return session
}

func TestSessionRespondAppliesServerReply(t *testing.T) {
	client := &fakeAPI{
		reply: api.RehearsalReply{
			Reply:           "Good, now hold that boundary.",
			Score:           82,
			Feedback:        "Clear and calm",
			XPAwarded:       15,
			NextPhase:       2,
			EscalationLevel: 1,
		},
	}
	session := newTestSession(t, client)

	reply, err := session.Respond(context.Background(), "I need you to stop interrupting me.")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	if reply.Score != 82 {
		t.Errorf("Expected score 82, got %d", reply.Score)
	}

	messages := session.Messages()
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Score != 82 {
		t.Errorf("Unexpected user message: %+v", messages[0])
	}
	if messages[1].Role != "coach" || messages[1].Text != "Good, now hold that boundary." {
		t.Errorf("Unexpected coach message: %+v", messages[1])
	}

	stats := session.GetStats()
	if stats.CurrentPhase != 2 {
		t.Errorf("Expected phase 2, got %d", stats.CurrentPhase)
	}
	if stats.EscalationLevel != 1 {
		t.Errorf("Expected escalation level 1, got %d", stats.EscalationLevel)
	}
	if stats.TotalXP != 15 {
		t.Errorf("Expected 15 XP, got %d", stats.TotalXP)
	}
	if stats.TurnsSubmitted != 1 {
		t.Errorf("Expected 1 turn submitted, got %d", stats.TurnsSubmitted)
	}
}

func TestSessionRespondFailureLeavesStateUntouched(t *testing.T) {
	client := &fakeAPI{respondErr: errors.New("server unavailable")}
	session := newTestSession(t, client)

	_, err := session.Respond(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Expected error from failed respond")
	}

	if len(session.Messages()) != 0 {
		t.Error("History should not be mutated on a failed turn")
	}

	stats := session.GetStats()
	if stats.CurrentPhase != 0 || stats.EscalationLevel != 0 || stats.TotalXP != 0 {
		t.Errorf("Session state mutated on failure: %+v", stats)
	}
	if session.Phase() != PhaseIdle {
		t.Errorf("Expected idle phase after failure, got %s", session.Phase())
	}
}

func TestSessionRespondSendsHistory(t *testing.T) {
	client := &fakeAPI{reply: api.RehearsalReply{Reply: "ok", NextPhase: 1}}
	session := newTestSession(t, client)

	if _, err := session.Respond(context.Background(), "First turn"); err != nil {
		t.Fatalf("First respond failed: %v", err)
	}
	if _, err := session.Respond(context.Background(), "Second turn"); err != nil {
		t.Fatalf("Second respond failed: %v", err)
	}

	turn := client.lastTurn.Load()
	if turn == nil {
		t.Fatal("Expected a captured turn")
	}
	if len(turn.MessageHistory) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(turn.MessageHistory))
	}
	if turn.MessageHistory[0] != "user: First turn" {
		t.Errorf("Unexpected history entry: %q", turn.MessageHistory[0])
	}
	if turn.CurrentPhase != 1 {
		t.Errorf("Expected phase 1 carried into second turn, got %d", turn.CurrentPhase)
	}
}

func TestSessionRespondRejectsEmptyText(t *testing.T) {
	client := &fakeAPI{}
	session := newTestSession(t, client)

	if _, err := session.Respond(context.Background(), ""); err == nil {
		t.Fatal("Expected error for empty response text")
	}
	if atomic.LoadInt32(&client.respondCalls) != 0 {
		t.Error("Empty text should not reach the server")
	}
}

func TestSubmitRecordingDiscardsOnTranscriptionFailure(t *testing.T) {
	client := &fakeAPI{transcribeErr: errors.New("transcription backend down")}
	session := newTestSession(t, client)

	recording := &capture.Recording{
		ID:        "rec-1",
		Format:    "wav",
		AudioData: []byte{0x01, 0x02, 0x03},
	}

	_, _, err := session.SubmitRecording(context.Background(), recording)
	if err == nil {
		t.Fatal("Expected error from failed transcription")
	}

	if atomic.LoadInt32(&client.respondCalls) != 0 {
		t.Error("Respond should not be called when transcription fails")
	}
	if session.Phase() != PhaseIdle {
		t.Errorf("Expected idle phase after failed submit, got %s", session.Phase())
	}
	if len(session.Messages()) != 0 {
		t.Error("History should not be mutated on a failed submit")
	}

	stats := session.GetStats()
	if stats.TranscriptionFailures != 1 {
		t.Errorf("Expected 1 transcription failure, got %d", stats.TranscriptionFailures)
	}
}

func TestSubmitRecordingFeedsTranscriptThroughTypedPath(t *testing.T) {
	client := &fakeAPI{
		transcript: "I hear you, and I still need the report today.",
		reply:      api.RehearsalReply{Reply: "Nicely held.", Score: 90, XPAwarded: 20, NextPhase: 3},
	}
	session := newTestSession(t, client)

	recording := &capture.Recording{
		ID:        "rec-2",
		Format:    "wav",
		AudioData: make([]byte, 64),
	}

	reply, transcript, err := session.SubmitRecording(context.Background(), recording)
	if err != nil {
		t.Fatalf("SubmitRecording failed: %v", err)
	}

	if transcript != client.transcript {
		t.Errorf("Expected transcript %q, got %q", client.transcript, transcript)
	}
	if reply.Score != 90 {
		t.Errorf("Expected score 90, got %d", reply.Score)
	}

	messages := session.Messages()
	if len(messages) != 2 || messages[0].Text != client.transcript {
		t.Errorf("Transcript did not enter history as a user message: %+v", messages)
	}
}

func TestSubmitRecordingRejectsEmptyPayload(t *testing.T) {
	client := &fakeAPI{}
	session := newTestSession(t, client)

	if _, _, err := session.SubmitRecording(context.Background(), nil); err == nil {
		t.Fatal("Expected error for nil recording")
	}
	if _, _, err := session.SubmitRecording(context.Background(), &capture.Recording{ID: "empty"}); err == nil {
		t.Fatal("Expected error for empty audio payload")
	}
	if atomic.LoadInt32(&client.transcribeCalls) != 0 {
		t.Error("Empty payloads should not reach the server")
	}
}

func TestRecordAndRespondDiscardsStaleTake(t *testing.T) {
	client := &fakeAPI{
		transcript: "I can commit to Friday.",
		reply:      api.RehearsalReply{Reply: "Good.", Score: 80, NextPhase: 1},
	}

	session, err := NewSession("boundary-setting", client, capture.Config{
		SampleRate:         16000,
		FrameSize:          64,
		SilenceThreshold:   30 * time.Millisecond,
		PreferredEncodings: []string{"raw"},
		DeviceFactory:      func() capture.Device { return &fakeDevice{} },
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	// A take from a cancelled turn can land in the buffer after the turn
	// already returned. It must not become the next turn's submission.
	stale := &capture.Recording{
		ID:        "stale-take",
		Format:    "raw",
		AudioData: []byte{0xAA, 0xBB, 0xCC},
	}
	session.handleAutoStop(stale)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, transcript, err := session.RecordAndRespond(ctx)
	if err != nil {
		t.Fatalf("RecordAndRespond failed: %v", err)
	}

	if transcript != client.transcript {
		t.Errorf("Expected transcript %q, got %q", client.transcript, transcript)
	}
	if calls := atomic.LoadInt32(&client.transcribeCalls); calls != 1 {
		t.Fatalf("Expected 1 transcribe call, got %d", calls)
	}

	req := client.lastTranscribe.Load()
	if req == nil {
		t.Fatal("Expected a captured transcribe request")
	}
	submitted, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		t.Fatalf("Submitted audio is not valid base64: %v", err)
	}
	if bytes.Equal(submitted, stale.AudioData) {
		t.Fatal("Stale take was submitted as the new turn")
	}
	if len(submitted) == 0 {
		t.Fatal("Expected the fresh take's audio in the submission")
	}
}

func TestTranscriptionMetricsCountActualRequests(t *testing.T) {
	client := &fakeAPI{
		transcript: "ok",
		reply:      api.RehearsalReply{Reply: "ok"},
	}

	session, err := NewSession("boundary-setting", client, capture.Config{
		SampleRate:       16000,
		FrameSize:        256,
		SilenceThreshold: 50 * time.Millisecond,
		DeviceFactory: func() capture.Device {
			return &fakeDevice{openErr: capture.ErrDeviceUnavailable}
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	m := &fakeMetrics{}
	session.SetMetrics(m)

	// A turn that never gets past the device is not a transcription request.
	if _, _, err := session.RecordAndRespond(context.Background()); err == nil {
		t.Fatal("Expected error when the device cannot be opened")
	}
	if n := atomic.LoadInt32(&m.requests); n != 0 {
		t.Fatalf("Expected 0 transcription requests after a failed start, got %d", n)
	}

	recording := &capture.Recording{ID: "rec-1", Format: "wav", AudioData: make([]byte, 32)}
	if _, _, err := session.SubmitRecording(context.Background(), recording); err != nil {
		t.Fatalf("SubmitRecording failed: %v", err)
	}
	if n := atomic.LoadInt32(&m.requests); n != 1 {
		t.Fatalf("Expected 1 transcription request, got %d", n)
	}
	if n := atomic.LoadInt32(&m.successes); n != 1 {
		t.Fatalf("Expected 1 transcription success, got %d", n)
	}

	client.transcribeErr = errors.New("transcription backend down")
	recording = &capture.Recording{ID: "rec-2", Format: "wav", AudioData: make([]byte, 32)}
	if _, _, err := session.SubmitRecording(context.Background(), recording); err == nil {
		t.Fatal("Expected error from failed transcription")
	}
	if n := atomic.LoadInt32(&m.requests); n != 2 {
		t.Fatalf("Expected 2 transcription requests, got %d", n)
	}
	if n := atomic.LoadInt32(&m.failures); n != 1 {
		t.Fatalf("Expected 1 transcription failure, got %d", n)
	}
}

func TestRecordAndRespondRejectsCompletedSession(t *testing.T) {
	client := &fakeAPI{reply: api.RehearsalReply{Reply: "done", Completed: true}}
	session := newTestSession(t, client)

	if _, err := session.Respond(context.Background(), "final turn"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if !session.Completed() {
		t.Fatal("Expected session to be completed")
	}

	if _, _, err := session.RecordAndRespond(context.Background()); err == nil {
		t.Fatal("Expected error starting a turn on a completed session")
	}
}
