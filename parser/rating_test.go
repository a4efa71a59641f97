package parser

import "testing"

func TestParseRating(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "out of with stars", input: "4 out of 5 stars", want: 4, ok: true},
		{name: "rating prefix", input: "Rating 3 out of 5", want: 3, ok: true},
		{name: "rating prefix only", input: "Rating 2", want: 2, ok: true},
		{name: "stars", input: "5 stars", want: 5, ok: true},
		{name: "single star", input: "1 star", want: 1, ok: true},
		{name: "slash", input: "3.5/5", want: 3.5, ok: true},
		{name: "slash with spaces", input: "2 / 5", want: 2, ok: true},
		{name: "bare number", input: "4.25", want: 4.25, ok: true},
		{name: "case insensitive", input: "RATING 1 OUT OF 5", want: 1, ok: true},
		{name: "no digits", input: "it was amazing", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRating(tt.input)
			if !tt.ok {
				if got != nil {
					t.Fatalf("ParseRating(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseRating(%q) = nil, want %v", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("ParseRating(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
