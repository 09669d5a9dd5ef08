package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"stockalert/internal/task/engine"
	logx "stockalert/pkg/logx"
)

// AddInterval registers job every interval. Registering a name again
// replaces the previous schedule.
func (s *Service) AddInterval(name string, every, timeout time.Duration, opt engine.TaskOptions, job Job) error {
	if every <= 0 {
		return fmt.Errorf("interval must be > 0, got %s", every)
	}
	return s.add(scheduleDef{name: name, spec: "@every " + every.String(), every: every, timeout: timeout, opt: opt, job: job})
}

// AddDaily registers job at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, opt engine.TaskOptions, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.add(scheduleDef{name: name, spec: fmt.Sprintf("%d %d * * *", m, h), timeout: timeout, opt: opt, job: job})
}

func (s *Service) add(d scheduleDef) error {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return errors.New("name required")
	}
	if d.job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep the run state across re-registration so a reload cannot start a
	// second copy of a job that is still running.
	d.state = &engine.RunState{}
	for _, old := range s.defs {
		if old.name == d.name {
			d.state = old.state
		}
	}
	s.removeLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	def := &s.defs[len(s.defs)-1]
	if err := s.registerLocked(def); err != nil {
		return err
	}
	s.log.Debug("schedule registered",
		logx.String("name", d.name),
		logx.String("spec", d.spec),
		logx.Time("next", s.c.Entry(def.entryID).Next),
	)
	return nil
}

// Remove unschedules name. It reports whether a schedule existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

// RunNow enqueues name's job immediately, honouring its overlap policy.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var def *scheduleDef
	for i := range s.defs {
		if s.defs[i].name == name {
			d := s.defs[i]
			def = &d
		}
	}
	s.mu.Unlock()
	if def == nil {
		return fmt.Errorf("unknown schedule %q", name)
	}
	return s.enqueue(*def)
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) enqueue(d scheduleDef) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	return s.engine.Enqueue(engine.Task{Name: d.name, Timeout: d.timeout, Run: d.job, Opt: d.opt, State: d.state})
}

func (s *Service) registerLocked(d *scheduleDef) error {
	def := *d
	job := cron.FuncJob(func() {
		if err := s.enqueue(def); err != nil {
			s.reportEnqueueError(def.name, err)
		}
	})

	if d.every > 0 {
		var sched cron.Schedule = cron.Every(d.every)
		if s.cfg.StartupSpread {
			sched = withStartupSpread(d.every, time.Now().In(s.loc), d.name)
		}
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}
	id, err := s.c.AddJob(d.spec, job)
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}

	snap := Snapshot{Timezone: loc.String()}
	for _, d := range defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.state.Busy()}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	if s.engine != nil {
		snap.Engine = s.engine.Snapshot()
	}
	return snap
}

func parseHHMM(v string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h, m, nil
}
