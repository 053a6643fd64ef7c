package postgres

import "testing"

func TestFormatVector(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want string
	}{
		{"empty", nil, "[]"},
		{"single", []float32{1}, "[1]"},
		{"mixed", []float32{0.5, -1.25, 3}, "[0.5,-1.25,3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatVector(tt.in); got != tt.want {
				t.Errorf("formatVector(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
