package ascapi

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Default lifetime of a generated API token.
	DefaultTokenDuration = 500 * time.Second

	// App Store Connect rejects tokens with a lifetime longer than 20 minutes.
	MaxTokenDuration = 1200 * time.Second

	audienceConnect    = "appstoreconnect-v1"
	audienceEnterprise = "apple-developer-enterprise-v1"
)

// Opaque, refreshable bearer credential used by token-mode clients.
//
// Implementations do not need to be safe for concurrent use: [Session] serializes access.
type Token interface {
	// Current bearer credential
	Text() string

	// Whether the current credential should be replaced before use
	Expired() bool

	// Generates or fetches a new credential
	Refresh() error
}

// Credentials for an App Store Connect API key, in the same JSON layout as downloaded key metadata files.
type APIKey struct {
	KeyID    string `json:"key_id"`
	IssuerID string `json:"issuer_id,omitempty"`

	// PEM-encoded PKCS#8 EC private key (".p8" file contents), optionally base64 encoded
	Key string `json:"key"`

	IsKeyContentBase64 bool `json:"is_key_content_base64,omitempty"`

	// Enterprise program keys use a different token audience
	InHouse bool `json:"in_house,omitempty"`

	// Token lifetime in seconds; zero means [DefaultTokenDuration]
	Duration int `json:"duration,omitempty"`
}

// Reads an [APIKey] JSON file from disk.
func LoadAPIKeyFile(path string) (*APIKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading API key file: %w", err)
	}
	var key APIKey
	if err := json.Unmarshal(b, &key); err != nil {
		return nil, fmt.Errorf("parsing API key file: %w", err)
	}
	return &key, nil
}

// [Token] implementation which signs short-lived ES256 JWTs with an App Store Connect API key. Refreshing generates a new JWT locally; no network request is involved.
type APIKeyToken struct {
	KeyID    string
	IssuerID string
	InHouse  bool
	Duration time.Duration

	privateKey *ecdsa.PrivateKey
	text       string
	expiresAt  time.Time

	// injectable clock, for tests
	now func() time.Time
}

// Parses the private key and generates an initial token.
func NewAPIKeyToken(key APIKey) (*APIKeyToken, error) {
	if key.KeyID == "" {
		return nil, fmt.Errorf("%w: API key is missing key_id", ErrInvalidConfig)
	}

	pemBytes := []byte(key.Key)
	if key.IsKeyContentBase64 {
		decoded, err := base64.StdEncoding.DecodeString(key.Key)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 API key content: %w", err)
		}
		pemBytes = decoded
	}

	priv, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing API private key: %w", err)
	}

	dur := time.Duration(key.Duration) * time.Second
	if dur <= 0 {
		dur = DefaultTokenDuration
	}
	if dur > MaxTokenDuration {
		dur = MaxTokenDuration
	}

	t := &APIKeyToken{
		KeyID:      key.KeyID,
		IssuerID:   key.IssuerID,
		InHouse:    key.InHouse,
		Duration:   dur,
		privateKey: priv,
		now:        time.Now,
	}
	if err := t.Refresh(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *APIKeyToken) Text() string {
	return t.text
}

func (t *APIKeyToken) ExpiresAt() time.Time {
	return t.expiresAt
}

func (t *APIKeyToken) Expired() bool {
	return !t.now().Before(t.expiresAt)
}

func (t *APIKeyToken) Refresh() error {
	now := t.now()
	exp := now.Add(t.Duration)

	aud := audienceConnect
	if t.InHouse {
		aud = audienceEnterprise
	}

	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"aud": aud,
	}
	// individual keys have no issuer
	if t.IssuerID != "" {
		claims["iss"] = t.IssuerID
	} else {
		claims["sub"] = "user"
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = t.KeyID
	signed, err := tok.SignedString(t.privateKey)
	if err != nil {
		return fmt.Errorf("signing API token: %w", err)
	}

	t.text = signed
	t.expiresAt = exp
	return nil
}
