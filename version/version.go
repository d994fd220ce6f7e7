package version

// Set at build time with -ldflags "-X github.com/MetropolisTHEMA/metroviz/version.Version=..."
var (
	Version = "dev"
	Date    = ""
)
