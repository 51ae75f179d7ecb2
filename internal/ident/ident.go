// Package ident generates message identifiers: globally unique, roughly
// time-ordered strings used as the caller-facing identity of every memory
// record across both storage tiers.
package ident

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a fresh message id. The ULID encoding gives a
// millisecond timestamp prefix and a random suffix, so ids sort
// chronologically without coordination. Strict monotonicity under concurrent
// calls is not guaranteed and not needed.
func NewMessageID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
