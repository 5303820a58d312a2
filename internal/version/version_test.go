package version

import (
	"strings"
	"testing"
)

func TestFullIncludesVersionAndCommit(t *testing.T) {
	prevVersion, prevCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = prevVersion, prevCommit })

	Version, Commit = "1.2.3", "abc123"
	if got := Full(); got != "pixcache 1.2.3 (abc123)" {
		t.Fatalf("unexpected full version: %s", got)
	}
	if got := Short(); got != "1.2.3" || strings.Contains(got, "abc123") {
		t.Fatalf("unexpected short version: %s", got)
	}
}
