package scheduler

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule overrides the first run time of a base schedule.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// withStartupSpread delays the first run of an interval schedule by a jitter
// derived from the schedule name so sources do not all fire at once.
func withStartupSpread(every time.Duration, now time.Time, tag string) cron.Schedule {
	spread := min(every, maxStartupSpread)
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(now.UnixNano())))
	jitter := time.Duration(rng.Int64N(int64(spread)))
	return &spreadSchedule{base: cron.Every(every), first: now.Add(every + jitter)}
}
