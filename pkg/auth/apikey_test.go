package auth

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAPIKeyPrefersValue(t *testing.T) {
	key, err := LoadAPIKey("  inline-key ", "/does/not/exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "inline-key" {
		t.Fatalf("key = %q", string(key))
	}
}

func TestLoadAPIKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("file-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	key, err := LoadAPIKey("", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "file-key" {
		t.Fatalf("key = %q", string(key))
	}
}

func TestLoadAPIKeyMissing(t *testing.T) {
	if _, err := LoadAPIKey("", ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAPIKey("", path); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey for empty file, got %v", err)
	}
}

func TestAPIKeyRedactsAndApplies(t *testing.T) {
	key := APIKey("abcdef123456")
	if got := key.String(); got != "****3456" {
		t.Fatalf("String() = %q", got)
	}
	req, _ := http.NewRequest(http.MethodGet, "https://console.example.com", nil)
	key.Apply(req)
	if req.Header.Get("Authorization") != "abcdef123456" {
		t.Fatal("authorization header not set")
	}
}
