package models

import (
	"strings"
	"testing"
)

func TestExtractImageID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "plain filename",
			url:  "https://img.example.hu/27/9/9527527_42acdd7d66f3e16f/29371822_9eff1a972a28a2dc.jpg",
			want: "9eff1a972a28a2dc",
		},
		{
			name: "resolution suffix",
			url:  "https://img.example.hu/27/9/9527527_42acdd7d66f3e16f/29371822_9eff1a972a28a2dc_xxl.jpg",
			want: "9eff1a972a28a2dc",
		},
		{
			name: "query string ignored",
			url:  "https://img.example.hu/1/0/100_aa/200_deadbeef00112233_l.jpg?token=x",
			want: "deadbeef00112233",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractImageID(tt.url); got != tt.want {
				t.Errorf("ExtractImageID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractImageIDFallback(t *testing.T) {
	url := "https://img.example.hu/nothing-recognizable.jpg"

	got := ExtractImageID(url)
	if !strings.HasPrefix(got, "u") || len(got) != 17 {
		t.Fatalf("fallback identifier %q does not look like a URL hash", got)
	}

	// Deterministic across calls, distinct across URLs.
	if again := ExtractImageID(url); again != got {
		t.Errorf("fallback identifier is not stable: %q != %q", again, got)
	}
	if other := ExtractImageID(url + "x"); other == got {
		t.Errorf("distinct URLs produced the same fallback identifier %q", got)
	}
}

func TestItemStateTerminal(t *testing.T) {
	terminals := []ItemState{ItemDedupedSkip, ItemMetadataError, ItemDownloadError, ItemValidateError, ItemPersisted, ItemBanned}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	nonTerminals := []ItemState{ItemDiscovered, ItemMetadataPending, ItemMetadataOK, ItemDownloadPending, ItemDownloadOK, ItemValidatePending}
	for _, s := range nonTerminals {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
