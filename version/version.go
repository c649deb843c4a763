// Package version carries build information set with -ldflags -X.
package version

// Build information (injected via ldflags; must not have default values)
var (
	Version   string
	GitSHA    string
	BuildDate string
)

// String returns "version (sha, date)" with "dev" for an unset version.
func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if GitSHA == "" && BuildDate == "" {
		return v
	}
	return v + " (" + GitSHA + ", " + BuildDate + ")"
}
