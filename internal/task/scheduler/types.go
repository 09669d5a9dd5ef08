package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stockalert/internal/task/engine"
	logx "stockalert/pkg/logx"
)

type Config struct {
	Timezone string // IANA name; empty means local
	// StartupSpread delays the first run of interval schedules by a random
	// fraction of the interval, capped at 30s.
	StartupSpread bool
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	every   time.Duration
	timeout time.Duration
	opt     engine.TaskOptions
	job     Job
	state   *engine.RunState
	entryID cron.EntryID
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	loc *time.Location

	engine *engine.Service
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
	Running bool          `json:"running"`
}

type Snapshot struct {
	Timezone  string          `json:"timezone"`
	Schedules []ScheduleInfo  `json:"schedules"`
	Engine    engine.Snapshot `json:"engine"`
}
