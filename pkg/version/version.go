package version

// Current defines the application version.
// It defaults to "dev" but is overwritten at build time with -ldflags "-X github.com/DrSkyle/scantrail/pkg/version.Current=...".
var Current = "dev"

const AppName = "scantrail"
