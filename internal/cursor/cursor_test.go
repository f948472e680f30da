package cursor_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tobiasmeyr/memovox/internal/cursor"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()
	want := cursor.Key{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		ID:        "b3d4c1e2-0000-4000-8000-000000000001",
	}

	got, err := cursor.Decode(cursor.Encode(want))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestDecode_EmptyIsStart(t *testing.T) {
	t.Parallel()
	k, err := cursor.Decode("")
	if err != nil {
		t.Fatalf("Decode(\"\"): %v", err)
	}
	if k != (cursor.Key{}) {
		t.Errorf("empty cursor = %+v, want zero key", k)
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
	}{
		{"not base64", "%%%"},
		{"not json", "bm90LWpzb24"},
		{"missing id", cursor.Encode(cursor.Key{CreatedAt: time.Now()})},
		{"missing timestamp", cursor.Encode(cursor.Key{ID: "x"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := cursor.Decode(tc.in); !errors.Is(err, cursor.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
