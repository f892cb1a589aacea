package vms

import (
	"strings"
	"time"
)

// Status is the canonical camera status vocabulary. Provider-specific
// status strings are normalized into this set before anything is stored.
type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
)

// Connection diagnostic values written back onto a VMS server record.
const (
	ConnectionStatusUnknown   = "unknown"
	ConnectionStatusConnected = "connected"
	ConnectionStatusFailed    = "failed"
)

// Monitor is a provider-side camera channel, normalized from the
// provider's own monitor representation. Never persisted.
type Monitor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mode   string `json:"mode,omitempty"`
	Status Status `json:"status"`
	Host   string `json:"host,omitempty"`
	Type   string `json:"type,omitempty"`
}

// RecordingClip is one entry of a provider's recording catalog.
// Start/End are zero when the provider timestamp could not be parsed;
// a clip with a zero Start is excluded from time matching.
type RecordingClip struct {
	Filename  string    `json:"filename"`
	Href      string    `json:"href"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end,omitempty"`
}

// StreamURLs is the set of live-view URLs a provider can hand out.
// Every field is optional; absent capabilities stay empty.
type StreamURLs struct {
	HLS      string `json:"hls,omitempty"`
	Embed    string `json:"embed,omitempty"`
	Snapshot string `json:"snapshot,omitempty"`
	Raw      string `json:"raw,omitempty"`
}

// TestResult is the outcome of a connection test against a VMS server.
type TestResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	MonitorCount int    `json:"monitor_count"`
}

// onlineStatuses holds every provider status word that counts as a live feed.
var onlineStatuses = map[string]bool{
	"watching":  true,
	"recording": true,
	"online":    true,
	"active":    true,
	"connected": true,
	"started":   true,
}

// MapProviderStatus normalizes a provider status string into the canonical
// vocabulary. Unknown words map to offline, never to error: a word we cannot
// read is treated the same as a feed we cannot see.
func MapProviderStatus(raw string) Status {
	if onlineStatuses[strings.ToLower(strings.TrimSpace(raw))] {
		return StatusOnline
	}
	return StatusOffline
}
