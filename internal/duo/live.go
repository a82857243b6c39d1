package duo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
)

// LiveFeed streams server-pushed session updates (partner messages, status
// changes) over a websocket. There is no automatic reconnect: on any error
// the feed closes its Updates channel and the caller decides whether to
// open a new one. Closing the feed always releases the connection.
type LiveFeed struct {
	session *Session
	conn    *websocket.Conn
	logger  *slog.Logger

	updates   chan *api.DuoSession
	closeOnce sync.Once
	done      chan struct{}
}

// OpenLiveFeed dials the session's live endpoint and starts delivering
// updates. baseURL is the API base (http or https); the scheme is rewritten
// for the websocket dial.
func OpenLiveFeed(ctx context.Context, baseURL, apiKey string, session *Session, logger *slog.Logger) (*LiveFeed, error) {
	wsURL, err := liveURL(baseURL, session.ID())
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial live feed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial live feed: %w", err)
	}

	f := &LiveFeed{
		session: session,
		conn:    conn,
		logger:  logger,
		updates: make(chan *api.DuoSession, 8),
		done:    make(chan struct{}),
	}

	go f.readLoop()

	logger.Info("Live feed opened", slog.String("session_id", session.ID()))
	return f, nil
}

// Updates delivers mirrored session states in server order. The channel is
// closed when the feed ends, on error or via Close.
func (f *LiveFeed) Updates() <-chan *api.DuoSession {
	return f.updates
}

// Close tears down the connection and drains the feed. Safe to call more
// than once.
func (f *LiveFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = f.conn.Close()
		<-f.done
	})
	return err
}

func (f *LiveFeed) readLoop() {
	defer close(f.updates)
	defer close(f.done)
	defer f.conn.Close()

	for {
		var remote api.DuoSession
		if err := f.conn.ReadJSON(&remote); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Warn("Live feed closed unexpectedly",
					slog.String("session_id", f.session.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		f.session.applyRemote(&remote)

		select {
		case f.updates <- &remote:
		default:
			// Slow consumer: the mirrored session state is already
			// current, only the notification is dropped.
		}

		if remote.Status == StatusCompleted {
			return
		}
	}
}

func liveURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base URL scheme: %s", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/duo/sessions/" + sessionID + "/live"
	return u.String(), nil
}
