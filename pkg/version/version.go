// Package version holds build metadata injected at link time.
package version

// AppName identifies this service to external collaborators.
const AppName = "dispatch"

// Set via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the payload for the version endpoint.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Name:      AppName,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}
}
