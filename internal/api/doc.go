// Package api provides the HTTP client for the remote Mirror Play service:
// transcription, practice scoring, rehearsal responses, duo-practice
// sessions, and user progress. The wire contract belongs to the server; this
// package only consumes it.
package api
