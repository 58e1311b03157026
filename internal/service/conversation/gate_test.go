package conversation

import (
	"errors"
	"testing"
)

func TestGate_Check(t *testing.T) {
	gate := NewGate("secret-token")

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"exact match", "secret-token", false},
		{"wrong token", "other", true},
		{"empty token", "", true},
		{"prefix", "secret", true},
		{"different case", "SECRET-TOKEN", true},
		{"trailing space", "secret-token ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.token)
			if tt.wantErr && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Check(%q) = %v, want ErrUnauthorized", tt.token, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Check(%q) unexpected error: %v", tt.token, err)
			}
		})
	}
}

func TestGate_EmptyMasterTokenRejectsAll(t *testing.T) {
	gate := NewGate("")

	if err := gate.Check(""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected empty master token to reject empty token, got %v", err)
	}
	if err := gate.Check("anything"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected empty master token to reject, got %v", err)
	}
}
