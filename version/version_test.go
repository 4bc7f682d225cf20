package version

import "testing"

func TestFull(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, GitCommit, BuildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuildTime
	})

	tests := []struct {
		name    string
		version string
		commit  string
		built   string
		want    string
	}{
		{"version only", "1.0.0", "", "", "1.0.0"},
		{"with commit", "1.0.0", "abc1234", "", "1.0.0-abc1234"},
		{"with build time", "1.0.0", "", "2026-01-29T12:00:00Z", "1.0.0 (2026-01-29T12:00:00Z)"},
		{"complete", "1.0.0", "abc1234", "2026-01-29T12:00:00Z", "1.0.0-abc1234 (2026-01-29T12:00:00Z)"},
		{"dev build", "dev", "", "", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, GitCommit, BuildTime = tt.version, tt.commit, tt.built
			if got := Full(); got != tt.want {
				t.Errorf("Full() = %q, want %q", got, tt.want)
			}
		})
	}
}
