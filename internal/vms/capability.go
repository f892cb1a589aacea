package vms

import "strings"

// ProviderShinobi is the provider id of the Shinobi-compatible adapter.
const ProviderShinobi = "shinobi"

// Capabilities describes what a provider can do. The zero value
// (nothing supported) is the answer for unknown providers.
type Capabilities struct {
	SupportsLive     bool `json:"supports_live"`
	SupportsPlayback bool `json:"supports_playback"`
	SupportsExport   bool `json:"supports_export"`
}

// capabilityTable is the fixed provider capability matrix.
var capabilityTable = map[string]Capabilities{
	ProviderShinobi: {
		SupportsLive:     true,
		SupportsPlayback: true,
		SupportsExport:   false,
	},
}

// CapabilitiesFor returns the capability set of a provider id.
// Unknown ids yield the zero value; this is a lookup, never an error.
func CapabilitiesFor(provider string) Capabilities {
	return capabilityTable[strings.ToLower(strings.TrimSpace(provider))]
}
