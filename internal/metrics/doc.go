// Package metrics defines the Prometheus metrics exported by the client's
// local monitor server: recording lifecycle, transcription outcomes, API
// retries and daily-limit rejections, and duo session activity.
package metrics
