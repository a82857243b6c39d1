// Package rehearsal drives a solo practice session: recording a spoken
// response, auto-submitting it on silence, transcribing it server-side, and
// feeding the transcript through the same message path a typed response
// takes. All scoring comes back from the server; the session state mutates
// only on API responses.
package rehearsal
