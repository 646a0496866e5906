// Package version reports the trellis build and the sync protocol revision
// it speaks.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Protocol is the revision of the WebSocket message protocol. It changes
// only when a frame's shape changes incompatibly.
const Protocol = 1

// Set at build time:
//
//	go build -ldflags "-X github.com/teranos/trellis/version.Version=v0.3.0 \
//	  -X github.com/teranos/trellis/version.CommitHash=$(git rev-parse HEAD) \
//	  -X github.com/teranos/trellis/version.BuildTime=$(date -u +%FT%TZ)"
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Protocol   int    `json:"protocol"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Protocol:   Protocol,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) released() bool {
	return i.Version != "" && i.Version != "dev"
}

// String is the line printed by `trellis version`.
func (i Info) String() string {
	name := "dev"
	if i.released() {
		name = i.Version
	}
	return fmt.Sprintf("trellis %s (commit %s, built %s, protocol v%d)", name, i.Short(), i.BuildTime, i.Protocol)
}

// Short is the abbreviated commit sent to clients.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// AppID identifies trellis to the storage SDKs, e.g. "trellis/v0.3.0" or
// "trellis/dev-1a2b3c4".
func (i Info) AppID() string {
	if i.released() {
		return "trellis/" + strings.TrimPrefix(i.Version, "v")
	}
	return "trellis/dev-" + i.Short()
}
