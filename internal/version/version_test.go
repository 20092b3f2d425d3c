package version

import (
	"testing"
)

func TestGetCurrentVersion(t *testing.T) {
	if got := GetCurrentVersion("dev"); got != DevVersion {
		t.Errorf("dev mode: got %s, want %s", got, DevVersion)
	}
	if got := GetCurrentVersion("demo"); got != DevVersion {
		t.Errorf("demo mode: got %s, want %s", got, DevVersion)
	}
	if got := GetCurrentVersion("prod"); got != Version {
		t.Errorf("prod mode: got %s, want %s", got, Version)
	}
}
