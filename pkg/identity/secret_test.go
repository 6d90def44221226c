package identity

import (
	"errors"
	"io"
	"testing"
)

func TestNewSecret(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"printable ascii", "hunter2", nil},
		{"punctuation and space", "p@ss word!", nil},
		{"printable unicode", "pässwörd", nil},
		{"empty", "", nil},
		{"crlf", "bad\r\npassword", ErrInvalidSecret},
		{"newline only", "bad\n", ErrInvalidSecret},
		{"nul byte", "bad\x00password", ErrInvalidSecret},
		{"tab", "bad\tpassword", ErrInvalidSecret},
		{"escape", "bad\x1bpassword", ErrInvalidSecret},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSecret(tc.raw)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("NewSecret(%q) error = %v, want %v", tc.raw, err, tc.wantErr)
			}
		})
	}
}

func TestSecretRedacted(t *testing.T) {
	s, err := NewSecret("hunter2")
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if s.String() != "[redacted]" {
		t.Errorf("String() = %q, want redacted placeholder", s.String())
	}
}

func TestSecretInput(t *testing.T) {
	s, err := NewSecret("hunter2")
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}

	once, _ := io.ReadAll(s.Input(1))
	if string(once) != "hunter2\n" {
		t.Errorf("Input(1) = %q", once)
	}

	twice, _ := io.ReadAll(s.Input(2))
	if string(twice) != "hunter2\nhunter2\n" {
		t.Errorf("Input(2) = %q", twice)
	}
}

func TestSecretIsEmpty(t *testing.T) {
	empty, _ := NewSecret("")
	if !empty.IsEmpty() {
		t.Error("empty secret should report IsEmpty")
	}
	full, _ := NewSecret("x")
	if full.IsEmpty() {
		t.Error("non-empty secret should not report IsEmpty")
	}
}
