package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Tokens is the identity token pair held between runs.
type Tokens struct {
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
}

// expired reports whether the access token is within skew of expiring.
func (t *Tokens) expired(now time.Time, skew time.Duration) bool {
	return !t.ExpiresAt.IsZero() && now.Add(skew).After(t.ExpiresAt)
}

// TokenStore persists tokens. Load returns nil, nil when nothing is stored.
type TokenStore interface {
	Load() (*Tokens, error)
	Save(t *Tokens) error
	Clear() error
}

type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens *Tokens
}

func (s *MemoryTokenStore) Load() (*Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil, nil
	}
	t := *s.tokens
	return &t, nil
}

func (s *MemoryTokenStore) Save(t *Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *t
	s.tokens = &saved
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	return nil
}

// FileTokenStore keeps tokens in a YAML file readable only by the owner.
type FileTokenStore struct {
	Path string
}

// DefaultCredentialsPath is credentials.yaml under the user config
// directory, e.g. $XDG_CONFIG_HOME/starterctl.
func DefaultCredentialsPath(app string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, app, "credentials.yaml"), nil
}

func (s *FileTokenStore) Load() (*Tokens, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var t Tokens
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", s.Path, err)
	}
	if t.RefreshToken == "" && t.AccessToken == "" {
		return nil, nil
	}
	return &t, nil
}

func (s *FileTokenStore) Save(t *Tokens) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
