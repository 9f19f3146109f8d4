// Package auth provides the credential verification capability consumed by
// the dashboard server. Credentials live in a single JSON record with a
// SHA-256 hex password hash; the core never formats user-facing messages.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Default credentials seeded when no record exists
const (
	DefaultUsername = "admin"
	defaultPassword = "admin123"
)

// Credentials is the stored {username, password_hash} record
type Credentials struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Verifier checks login attempts against the stored credential record
type Verifier struct {
	path   string
	logger *zap.Logger
}

// NewVerifier creates a verifier over dataDir/credentials.json
func NewVerifier(dataDir string, logger *zap.Logger) *Verifier {
	return &Verifier{
		path:   filepath.Join(dataDir, "credentials.json"),
		logger: logger,
	}
}

// Load returns the stored credentials, creating the default record when
// none exists yet.
func (v *Verifier) Load() (*Credentials, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return v.seedDefaults()
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &creds, nil
}

// Verify reports whether the username/password pair matches the stored
// record.
func (v *Verifier) Verify(username, password string) bool {
	creds, err := v.Load()
	if err != nil {
		v.logger.Error("Failed to load credentials", zap.Error(err))
		return false
	}
	return username == creds.Username && HashPassword(password) == creds.PasswordHash
}

func (v *Verifier) seedDefaults() (*Credentials, error) {
	creds := &Credentials{
		Username:     DefaultUsername,
		PasswordHash: HashPassword(defaultPassword),
	}

	if err := os.MkdirAll(filepath.Dir(v.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write credentials: %w", err)
	}

	v.logger.Warn("Created default credentials, change them before exposing the dashboard",
		zap.String("username", DefaultUsername))

	return creds, nil
}

// HashPassword returns the SHA-256 hex digest of password
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
