package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token()
	if err != nil || tok != "abc" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	if _, err := StaticToken("").Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty token error = %v, want ErrNoToken", err)
	}
}

func TestFileToken_ReadsEachCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := FileToken(path)
	tok, err := src.Token()
	if err != nil || tok != "first" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}

	if err := os.WriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tok, err = src.Token()
	if err != nil || tok != "second" {
		t.Errorf("Token() after rotation = %q, %v", tok, err)
	}
}

func TestLoadToken_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadToken(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := LoadToken(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty")
	os.WriteFile(empty, []byte("  \n"), 0600)
	if _, err := LoadToken(empty); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty file error = %v, want ErrNoToken", err)
	}
}

func TestEnvToken(t *testing.T) {
	t.Setenv("ESCROW_TEST_TOKEN", " from-env ")

	tok, err := EnvToken("ESCROW_TEST_TOKEN").Token()
	if err != nil || tok != "from-env" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	if _, err := EnvToken("ESCROW_TEST_TOKEN_UNSET").Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("unset error = %v, want ErrNoToken", err)
	}
}

func TestNewTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	os.WriteFile(path, []byte("file-token"), 0600)

	tests := []struct {
		name    string
		token   string
		file    string
		want    string
		wantErr bool
	}{
		{"inline wins", "inline", path, "inline", false},
		{"file", "", path, "file-token", false},
		{"missing file", "", path + ".missing", "", true},
		{"nothing", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewTokenSource(tt.token, tt.file)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTokenSource failed: %v", err)
			}
			got, _ := src.Token()
			if got != tt.want {
				t.Errorf("Token() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthHeaders(t *testing.T) {
	headers, err := AuthHeaders(StaticToken("abc"))
	if err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}
	if headers["Authorization"] != "Bearer abc" {
		t.Errorf("Authorization = %q", headers["Authorization"])
	}

	if _, err := AuthHeaders(StaticToken("")); err == nil {
		t.Error("expected error without token")
	}
}
