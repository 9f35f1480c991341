package peerid

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"simple", "alice-01", true},
		{"underscore", "device_42", true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", MaxLength+1), false},
		{"max length", strings.Repeat("a", MaxLength), true},
		{"space", "alice bob", false},
		{"slash", "alice/bob", false},
		{"unicode", "alïce", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if (err == nil) != tt.ok {
				t.Errorf("Validate(%q) error = %v, want ok = %v", tt.in, err, tt.ok)
			}
		})
	}
}
