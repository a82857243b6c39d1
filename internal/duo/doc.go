// Package duo tracks a shared two-person practice session: invitation,
// turn alternation, message history, and completion. The server is
// authoritative for scoring and turn ownership; this package mirrors its
// state and rejects out-of-turn submissions locally before they hit the
// network. A LiveFeed delivers the partner's messages and status changes
// over a websocket connection.
package duo
