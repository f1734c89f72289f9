package ui

import (
	"sync"
	"time"
)

// StageProgress is the count for one pipeline stage.
type StageProgress struct {
	Current int
	Total   int
}

// Done reports whether the stage has seen every item.
func (s StageProgress) Done() bool { return s.Total > 0 && s.Current >= s.Total }

// ProgressTracker accumulates interleaved stage updates. Screening,
// indexing and storing overlap, so each stage keeps its own count and the
// headline stage is the furthest one reported.
type ProgressTracker struct {
	mu          sync.RWMutex
	collection  string
	stage       Stage
	stages      [StageComplete]StageProgress
	currentFile string
	startTime   time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	// lastETA smooths the estimate between updates.
	lastETA time.Duration
	now     func() time.Time
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Collection  string
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	Rate        float64
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Stages      [StageComplete]StageProgress
}

// NewProgressTracker creates a tracker starting at discovery.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{stage: StageDiscover, startTime: now(), now: now}
}

// Reset starts tracking a new collection.
func (p *ProgressTracker) Reset(collection string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.collection = collection
	p.stage = StageDiscover
	p.stages = [StageComplete]StageProgress{}
	p.currentFile = ""
	p.startTime = p.now()
	p.lastETA = 0
}

// Update records an event. Counts never move backwards.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Collection != "" && event.Collection != p.collection {
		p.collection = event.Collection
		p.stages = [StageComplete]StageProgress{}
		p.stage = StageDiscover
		p.startTime = p.now()
		p.lastETA = 0
	}
	if event.Stage == StageComplete {
		p.stage = StageComplete
		return
	}
	if event.Stage < 0 || event.Stage >= StageComplete {
		return
	}

	sp := &p.stages[event.Stage]
	if event.Current > sp.Current {
		sp.Current = event.Current
	}
	if event.Total > 0 {
		sp.Total = event.Total
	}
	if event.Stage > p.stage {
		p.stage = event.Stage
	}
	if event.CurrentFile != "" {
		p.currentFile = event.CurrentFile
	}
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns a snapshot. It takes the write lock because the ETA
// estimate is smoothed in place.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ProgressStats{
		Collection:  p.collection,
		Stage:       p.stage,
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Stages:      p.stages,
	}
	if p.stage < StageComplete {
		cur := p.stages[p.stage]
		s.Current, s.Total = cur.Current, cur.Total
		s.Progress = fraction(cur)
	} else {
		s.Progress = 1
	}
	elapsed := p.now().Sub(p.startTime)
	if elapsed > 0 {
		s.Rate = float64(s.Current) / elapsed.Seconds()
	}
	s.ETA = p.calculateETA(s.Progress, elapsed)
	return s
}

func fraction(sp StageProgress) float64 {
	if sp.Total <= 0 {
		return 0
	}
	f := float64(sp.Current) / float64(sp.Total)
	if f > 1 {
		return 1
	}
	return f
}

// etaSmoothingFactor weights a new estimate against the previous one.
const etaSmoothingFactor = 0.3

// calculateETA must be called with mu held.
func (p *ProgressTracker) calculateETA(progress float64, elapsed time.Duration) time.Duration {
	if progress <= 0 || progress >= 1 {
		return 0
	}
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	smoothed := time.Duration(etaSmoothingFactor*float64(raw) + (1-etaSmoothingFactor)*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}

// Elapsed returns the time since the current collection started.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Sub(p.startTime)
}

// Errors returns a copy of the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// Warnings returns a copy of the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ErrorEvent(nil), p.warnings...)
}
