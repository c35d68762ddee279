package message

import (
	"fmt"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idRandomLength = 12

// IdGenerator produces ids of the form msg_<unix ms>_<nanoid>. The time
// component never goes backwards even if the wall clock does, so ids sort
// approximately by creation; the random component keeps ids minted within the
// same millisecond distinct.
type IdGenerator struct {
	lastMillis atomic.Int64
	now        func() time.Time
}

func NewIdGenerator() *IdGenerator {
	return &IdGenerator{
		now: time.Now,
	}
}

func (g *IdGenerator) Next() string {
	return fmt.Sprintf("msg_%013d_%s", g.nextMillis(), gonanoid.Must(idRandomLength))
}

func (g *IdGenerator) nextMillis() int64 {
	now := g.now().UnixMilli()

	for {
		last := g.lastMillis.Load()
		if now <= last {
			return last
		}

		if g.lastMillis.CompareAndSwap(last, now) {
			return now
		}
	}
}
