package configuration

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv_LoadsExistingFiles(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, ".env.local"), []byte("VENUE_SDK_TEST_ENV_LOAD=ok\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("VENUE_SDK_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("VENUE_SDK_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded, got %q", got)
	}
}

func TestRateLimitOptionsValidate(t *testing.T) {
	cases := []struct {
		name    string
		opts    RateLimitOptions
		wantErr bool
	}{
		{name: "memory ok", opts: RateLimitOptions{GlobalRPS: 100, Storage: "memory"}},
		{name: "negative rps", opts: RateLimitOptions{GlobalRPS: -1, Storage: "memory"}, wantErr: true},
		{name: "unknown storage", opts: RateLimitOptions{GlobalRPS: 1, Storage: "etcd"}, wantErr: true},
		{name: "redis without url", opts: RateLimitOptions{GlobalRPS: 1, Storage: "redis"}, wantErr: true},
		{name: "redis with url", opts: RateLimitOptions{GlobalRPS: 1, Storage: "redis", RedisURL: "localhost:6379"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
