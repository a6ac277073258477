package cache

import (
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/2", false},
		{"empty", "", true},
		{"wrong-scheme", "http://localhost:6379", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyPrefix(t *testing.T) {
	c := &Cache{prefix: "qbank"}
	if got := c.key("suggestions"); got != "qbank:suggestions" {
		t.Fatalf("unexpected key %q", got)
	}
	bare := &Cache{}
	if got := bare.key("suggestions"); got != "suggestions" {
		t.Fatalf("unexpected bare key %q", got)
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	_, err := New(t.Context(), "redis://localhost:59999", "qbank")
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}
