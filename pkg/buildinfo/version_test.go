package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v1.2.3"
	if got := UserAgent(); !strings.HasPrefix(got, "supplychain/v1.2.3 (") {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestString(t *testing.T) {
	if !strings.Contains(String(), "commit: "+Commit) {
		t.Errorf("String() = %q", String())
	}
}
