// Package buildinfo exposes the version stamp compiled into the binary.
package buildinfo

import (
	"encoding/json"
	"net/http"
)

// Set at build time via ldflags:
// -X github.com/otherjamesbrown/notewatch/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/notewatch/pkg/buildinfo.Commit=abc1234
// -X github.com/otherjamesbrown/notewatch/pkg/buildinfo.BuildTime=2026-08-24T10:30:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the one-liner printed by --version, like
// "v0.3.0 (abc1234, 2026-08-24T10:30:00Z)".
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler serves the build stamp as JSON. It is mounted next to the metrics
// endpoint.
func Handler(service string) http.HandlerFunc {
	type stamp struct {
		Service   string `json:"service"`
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildTime string `json:"build_time"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stamp{
			Service:   service,
			Version:   Version,
			Commit:    Commit,
			BuildTime: BuildTime,
		})
	}
}
