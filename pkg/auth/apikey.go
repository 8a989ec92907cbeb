package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

var ErrMissingAPIKey = errors.New("api key is required (api_key, api_key_file or DICTL_API_KEY)")

// APIKey is the console credential. It is sent verbatim in the
// Authorization header; String never prints it.
type APIKey string

// LoadAPIKey prefers an inline value and falls back to reading path.
func LoadAPIKey(value, path string) (APIKey, error) {
	if v := strings.TrimSpace(value); v != "" {
		return APIKey(v), nil
	}
	if path == "" {
		return "", ErrMissingAPIKey
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read api key file %s: %w", path, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("api key file %s is empty: %w", path, ErrMissingAPIKey)
	}
	return APIKey(key), nil
}

// Apply sets the authorization header on req.
func (k APIKey) Apply(req *http.Request) {
	req.Header.Set("Authorization", string(k))
}

func (k APIKey) String() string {
	if len(k) <= 4 {
		return "****"
	}
	return "****" + string(k[len(k)-4:])
}
