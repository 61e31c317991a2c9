package media

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCopyWithLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		maxBytes int64
		tooLarge bool
	}{
		{name: "under", payload: "abc", maxBytes: 8},
		{name: "exact", payload: "12345", maxBytes: 5},
		{name: "over", payload: "0123456789", maxBytes: 5, tooLarge: true},
		{name: "unbounded", payload: strings.Repeat("x", 4096), maxBytes: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			n, err := copyWithLimit(&out, strings.NewReader(tt.payload), tt.maxBytes)
			if tt.tooLarge {
				if !errors.Is(err, ErrAssetTooLarge) {
					t.Fatalf("expected ErrAssetTooLarge, got %v", err)
				}
				if n != tt.maxBytes+1 {
					t.Fatalf("expected read to stop at %d bytes, got %d", tt.maxBytes+1, n)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.String() != tt.payload || n != int64(len(tt.payload)) {
				t.Fatalf("unexpected copy: n=%d len=%d", n, out.Len())
			}
		})
	}
}

func TestReadAllWithLimitRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := ReadAllWithLimit(nil, 10); err == nil {
		t.Fatal("expected error for nil reader")
	}
	if _, err := ReadAllWithLimit(strings.NewReader("a"), 0); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
	if _, err := ReadAllWithLimit(strings.NewReader("toolong"), 3); !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected ErrAssetTooLarge, got %v", err)
	}
	got, err := ReadAllWithLimit(strings.NewReader("ok"), 2)
	if err != nil || string(got) != "ok" {
		t.Fatalf("unexpected result: %q %v", got, err)
	}
}
