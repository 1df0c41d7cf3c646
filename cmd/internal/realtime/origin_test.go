package realtime

import (
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	allowed := []string{"http://localhost:5173", "https://app.example.com"}
	cases := []struct {
		name     string
		origin   string
		required bool
		allowed  []string
		ok       bool
	}{
		{"missing optional", "", false, allowed, true},
		{"missing required", "", true, allowed, false},
		{"exact", "https://app.example.com", true, allowed, true},
		{"host match other port", "http://localhost:3000", true, allowed, true},
		{"foreign", "https://evil.example.net", true, allowed, false},
		{"empty allowlist", "https://app.example.com", true, nil, false},
		{"wildcard", "https://anything.test", true, []string{"*"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := enforceOrigin(r, tc.required, tc.allowed)
			if (err == nil) != tc.ok {
				t.Fatalf("err=%v ok=%v", err, tc.ok)
			}
		})
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://LOCALHOST:5173", "http://localhost", "", "https://app.example.com"})
	want := []string{"app.example.com", "app.example.com:*", "localhost", "localhost:*"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patterns=%v want %v", got, want)
	}
}
