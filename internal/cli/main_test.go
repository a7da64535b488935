package cli

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"
)

func TestCargoArgs(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, nil},
		{[]string{"crates"}, []string{"crates"}},
		{[]string{"supply-chain", "crates", "--", "--offline"}, []string{"crates", "--", "--offline"}},
		{[]string{"crates", "supply-chain"}, []string{"crates", "supply-chain"}},
	}
	for _, tt := range tests {
		if got := cargoArgs(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("cargoArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMainAsCargoSubcommand(t *testing.T) {
	cacheDir := testEnv(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	for _, args := range [][]string{
		{"cache", "path"},
		{"supply-chain", "cache", "path"},
	} {
		var stdout, stderr bytes.Buffer
		if code := Main(context.Background(), args, &stdout, &stderr); code != ExitOK {
			t.Fatalf("Main(%q) = %d, stderr:\n%s", args, code, stderr.String())
		}
		if got := strings.TrimSpace(stdout.String()); got != cacheDir {
			t.Errorf("Main(%q) printed %q, want %q", args, got, cacheDir)
		}
	}
}

func TestMainReportsErrors(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	t.Setenv("SUPPLYCHAIN_API_CACHE", "memcached")

	var stdout, stderr bytes.Buffer
	if code := Main(context.Background(), []string{"cache", "path"}, &stdout, &stderr); code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if !strings.Contains(stderr.String(), "error:") {
		t.Errorf("stderr should carry the error:\n%s", stderr.String())
	}
}

func TestMainCanceled(t *testing.T) {
	api := fakeRegistry(t)
	testEnv(t, api.URL, "http://127.0.0.1:1/dump.tar.gz")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	if code := Main(ctx, []string{"lookup", "serde"}, &stdout, &stderr); code != ExitCanceled {
		t.Errorf("exit code = %d, want %d\n%s", code, ExitCanceled, stderr.String())
	}
}
