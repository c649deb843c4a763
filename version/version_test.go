package version

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		version string
		sha     string
		date    string
		want    string
	}{
		{"unset", "", "", "", "dev"},
		{"version only", "1.2.0", "", "", "1.2.0"},
		{"full", "1.2.0", "abc123", "2026-10-18", "1.2.0 (abc123, 2026-10-18)"},
		{"sha without version", "", "abc123", "2026-10-18", "dev (abc123, 2026-10-18)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			Version, GitSHA, BuildDate = tc.version, tc.sha, tc.date
			t.Cleanup(func() { Version, GitSHA, BuildDate = "", "", "" })
			if got := String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}
