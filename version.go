package govproof

// Set via -ldflags at build time.
var (
	// CurrentCommit current git commit hash
	CurrentCommit = ""
	// CurrentBranch current git branch
	CurrentBranch = ""
	// CurrentVersion current project version
	CurrentVersion = "0.0.1"
	// BuildDate compile date
	BuildDate = ""
	// Platform info
	Platform = ""
	// GoVersion system go version
	GoVersion = ""
)
