// Package auth provides the bearer token presented to the platform's REST and
// WebSocket endpoints.
//
// Tokens are issued and refreshed elsewhere; this package only reads them.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken is returned when a source has no token to offer.
var ErrNoToken = errors.New("no auth token available")

// TokenSource returns the current bearer token. It is called synchronously
// at connect and request time and must not block for long.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// FileToken reads the token from a file on every call, so an external
// process can rotate it in place.
type FileToken string

// Token implements TokenSource.
func (p FileToken) Token() (string, error) {
	return LoadToken(string(p))
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

// Token implements TokenSource.
func (name EnvToken) Token() (string, error) {
	v := strings.TrimSpace(os.Getenv(string(name)))
	if v == "" {
		return "", fmt.Errorf("%w: $%s is empty", ErrNoToken, string(name))
	}
	return v, nil
}

// LoadToken reads and trims a token file.
func LoadToken(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("token path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, path)
	}
	return token, nil
}

// NewTokenSource picks a source from configuration: an inline token wins over
// a token file.
func NewTokenSource(token, tokenFile string) (TokenSource, error) {
	switch {
	case token != "":
		return StaticToken(token), nil
	case tokenFile != "":
		if _, err := LoadToken(tokenFile); err != nil {
			return nil, err
		}
		return FileToken(tokenFile), nil
	default:
		return nil, ErrNoToken
	}
}

// AuthHeaders returns the headers that authenticate a REST request.
func AuthHeaders(ts TokenSource) (headers map[string]string, err error) {
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	return map[string]string{
		"Authorization": "Bearer " + token,
	}, nil
}
