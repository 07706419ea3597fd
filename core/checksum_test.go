package core

import "testing"

func TestComputeSHA256(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello world", "hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"binary", "\xde\xad\xbe\xef", "5f78c33274e43fa9de5659265c1d917e25c03722dcb0b8d27db8d5feaa813953"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeSHA256FromBytes([]byte(tt.input)); got != tt.want {
				t.Errorf("ComputeSHA256FromBytes() = %q, want %q", got, tt.want)
			}
			if got := ComputeSHA256FromString(tt.input); got != tt.want {
				t.Errorf("ComputeSHA256FromString() = %q, want %q", got, tt.want)
			}
		})
	}
}
