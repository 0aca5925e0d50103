package attendance

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock supplies the current time in the ledger's timezone.
type Clock interface {
	Now() time.Time
}

type zoneClock struct {
	loc *time.Location
}

// NewClock returns a wall clock that reports time in loc.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return zoneClock{loc: loc}
}

func (c zoneClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// IDGen produces record identifiers.
type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
