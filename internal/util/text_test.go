package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "updated_date=2022-01-01/part_000.gz",
			want:  "updated_date=2022-01-01/part_000.gz",
		},
		{
			name:  "contains null byte",
			input: "part\x00_000.gz",
			want:  "part_000.gz",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{name: "short", input: "abc", limit: 10, want: "abc"},
		{name: "cut", input: "abcdef", limit: 3, want: "abc…"},
		{name: "no limit", input: "abcdef", limit: 0, want: "abcdef"},
		{name: "multibyte boundary", input: "aé", limit: 2, want: "a…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Abbreviate(tt.input, tt.limit)
			if got != tt.want {
				t.Fatalf("Abbreviate(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.want)
			}
		})
	}
}
