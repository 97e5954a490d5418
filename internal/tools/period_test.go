package tools

import "testing"

func TestNormalizePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Annual", "FY"},
		{"annual", "FY"},
		{"4Q", "FY"},
		{"Q4", "FY"},
		{"FY", "FY"},
		{" fy ", "FY"},
		{"1Q", "1Q"},
		{"2Q", "2Q"},
		{"3Q", "3Q"},
		{"", ""},
		{"H1", "H1"},
		{"invalid", "invalid"},
	}
	for _, tt := range tests {
		if got := NormalizePeriod(tt.in); got != tt.want {
			t.Errorf("NormalizePeriod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePeriodIdempotent(t *testing.T) {
	for _, in := range []string{"Annual", "4Q", "Q4", "FY", "1Q", "2Q", "3Q", "", "weird"} {
		once := NormalizePeriod(in)
		if twice := NormalizePeriod(once); twice != once {
			t.Errorf("NormalizePeriod not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
