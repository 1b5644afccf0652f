package version

import "runtime"

// Set with -ldflags "-X github.com/hive402/backend/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func GoVersion() string { return runtime.Version() }
