// Package schedule computes deliverability-aware send times. Each sending
// domain is an independent lane: consecutive sends on a domain are spaced by
// a configurable interval plus random jitter, and every send lands inside the
// configured working window in the campaign timezone.
package schedule

import (
	"math/rand"
	"time"
)

// Options configures a Planner.
type Options struct {
	Location  *time.Location
	WorkStart int // hour, inclusive
	WorkEnd   int // hour, exclusive
	Interval  time.Duration
	JitterMax time.Duration
	PoolSize  int

	SkipWeekends        bool
	DisableWorkingHours bool
}

// Item is one staged email to be placed on the timeline. DomainIndex is
// non-nil when the item was queued before (retry) and must stay on its
// original domain.
type Item struct {
	ID          string
	DomainIndex *int
}

// Assignment is the planner's output for one item.
type Assignment struct {
	ID           string
	DomainIndex  int
	ScheduledFor time.Time
}

// Planner assigns domains round-robin and spaces sends per domain. The clock
// and jitter source are injectable so tests are deterministic.
type Planner struct {
	opts Options
	now  func() time.Time
	rand func() float64
}

// NewPlanner creates a planner with the real clock and jitter source.
func NewPlanner(opts Options) *Planner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	return &Planner{
		opts: opts,
		now:  time.Now,
		rand: rand.Float64,
	}
}

// WithClock overrides the clock. Test hook.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// WithJitterSource overrides the jitter source with a uniform [0,1) func.
// Test hook.
func (p *Planner) WithJitterSource(r func() float64) *Planner {
	p.rand = r
	return p
}

// Plan places items on the timeline. commitments maps domain index to the
// latest already-scheduled send on that domain across all campaigns; lanes
// with a commitment continue from it rather than restarting at the window
// floor, so a second launch never bunches on top of an in-flight one.
//
// Items pinned to a domain keep it but still advance the round-robin
// counter, preserving the original domain rotation order for the items that
// follow.
func (p *Planner) Plan(items []Item, commitments map[int]time.Time) []Assignment {
	floor := p.startFloor(p.now())

	last := make(map[int]time.Time, len(commitments))
	for d, t := range commitments {
		last[d] = t
	}

	assignments := make([]Assignment, 0, len(items))
	rr := 0
	for _, item := range items {
		d := rr % p.opts.PoolSize
		if item.DomainIndex != nil {
			d = *item.DomainIndex
		}
		rr++

		jitter := time.Duration(p.rand() * float64(p.opts.JitterMax))

		var candidate time.Time
		if prev, ok := last[d]; ok {
			candidate = prev.Add(p.opts.Interval + jitter)
		} else {
			// First send on this lane anywhere
			candidate = floor.Add(jitter)
		}
		candidate = p.clampToWindow(candidate)

		last[d] = candidate
		assignments = append(assignments, Assignment{
			ID:           item.ID,
			DomainIndex:  d,
			ScheduledFor: candidate.UTC(),
		})
	}
	return assignments
}

// startFloor clamps now into the working window: weekends roll to the next
// Monday's start hour, after-hours rolls to the next weekday's start hour,
// and early mornings wait for the same day's start hour.
func (p *Planner) startFloor(now time.Time) time.Time {
	if p.opts.DisableWorkingHours {
		return now
	}
	zoned := now.In(p.opts.Location)

	if p.opts.SkipWeekends && isWeekend(zoned) {
		return p.nextWeekdayStart(zoned)
	}
	switch {
	case zoned.Hour() < p.opts.WorkStart:
		return p.dayAtHour(zoned, p.opts.WorkStart)
	case zoned.Hour() >= p.opts.WorkEnd:
		return p.nextWeekdayStart(zoned)
	default:
		return zoned.Truncate(time.Second)
	}
}

// clampToWindow pushes a candidate that falls on a weekend or past the end
// of the working day to the next weekday's start hour, and one before the
// start hour to the same day's start. Early candidates happen when a lane
// continues from a commitment planned under the working-hours override.
func (p *Planner) clampToWindow(candidate time.Time) time.Time {
	if p.opts.DisableWorkingHours {
		return candidate
	}
	zoned := candidate.In(p.opts.Location)

	if p.opts.SkipWeekends && isWeekend(zoned) {
		return p.nextWeekdayStart(zoned)
	}
	if candidate.Before(p.dayAtHour(zoned, p.opts.WorkStart)) {
		return p.dayAtHour(zoned, p.opts.WorkStart)
	}
	if !candidate.Before(p.dayAtHour(zoned, p.opts.WorkEnd)) {
		return p.nextWeekdayStart(zoned)
	}
	return candidate
}

// nextWeekdayStart returns the start hour of the next working day after t.
func (p *Planner) nextWeekdayStart(t time.Time) time.Time {
	day := t.AddDate(0, 0, 1)
	for p.opts.SkipWeekends && isWeekend(day) {
		day = day.AddDate(0, 0, 1)
	}
	return p.dayAtHour(day, p.opts.WorkStart)
}

// dayAtHour builds the given hour on t's calendar day in the planner
// timezone. time.Date handles DST transitions, so 09:00 local stays 09:00
// local across offset changes.
func (p *Planner) dayAtHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, p.opts.Location)
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
