// Package cursor implements the opaque keyset-pagination cursors used by
// the list endpoints. A cursor encodes the (created_at, id) position of the
// last row of the previous page; listing resumes strictly after it, so pages
// stay stable while new rows arrive at the head.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is returned by Decode for cursors that did not come from
// Encode. The API maps it to a 400 response.
var ErrInvalid = errors.New("invalid cursor")

// Key is the decoded keyset position.
type Key struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// Encode serialises k into an opaque URL-safe string.
func Encode(k Key) string {
	b, _ := json.Marshal(k)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a cursor produced by Encode. An empty string is valid and
// returns the zero Key, meaning "start at the newest row".
func Decode(s string) (Key, error) {
	if s == "" {
		return Key{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var k Key
	if err := json.Unmarshal(b, &k); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if k.ID == "" || k.CreatedAt.IsZero() {
		return Key{}, ErrInvalid
	}
	return k, nil
}
