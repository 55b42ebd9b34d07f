package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Current is the release version without a leading v.
const Current = "0.3.0"

// Build information, set at build time via ldflags.
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info contains version and build information.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:    Current,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("qidmerge %s (commit %s, built %s, %s %s)", i.Version, i.CommitHash, i.BuildTime, i.GoVersion, i.Platform)
}

// Semver parses Current strictly.
func Semver() (*semver.Version, error) {
	v, err := semver.StrictNewVersion(Current)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", Current, err)
	}
	return v, nil
}
