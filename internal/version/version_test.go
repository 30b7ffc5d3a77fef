package version

import (
	"strings"
	"testing"
)

func TestInfoMatchesGetters(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build info must not be empty: %q %q %q", v, c, d)
	}
	if GetVersion() != v || GetCommit() != c || GetDate() != d {
		t.Fatalf("getters disagree with Info: %s %s %s", GetVersion(), GetCommit(), GetDate())
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Fatalf("expected %q in %q", part, s)
		}
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "storefront-bff/"+GetVersion() {
		t.Fatalf("unexpected user agent %q", got)
	}
}
