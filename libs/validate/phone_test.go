package validate

import "testing"

func TestE164(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"+919876543210", true},
		{"+14155550123", true},
		{"9876543210", false},
		{"+0123456789", false},
		{"+91 98765", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := E164(tc.in); got != tc.want {
			t.Fatalf("E164(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" +91 (98765) 432-10 "); got != "+919876543210" {
		t.Fatalf("unexpected normalized phone: %q", got)
	}
}
