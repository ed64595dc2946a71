package buildinfo

// set via -ldflags at release time
var (
	Version    = "v0.1.0"
	CommitHash = "unknown"
)

type Info struct {
	About      string `json:"about,omitempty" yaml:"about,omitempty"`
	Service    string `json:"service,omitempty" yaml:"service,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	CommitHash string `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
}

func GetBuildInfo() Info {
	return Info{
		About:      "https://github.com/darmiel/taskdeck",
		Service:    "Taskdeck",
		Version:    Version,
		CommitHash: CommitHash,
	}
}

// UserAgent identifies this client in outgoing requests.
func UserAgent() string {
	return "taskdeck/" + Version
}
