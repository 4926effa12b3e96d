package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs throttled progress for a phase of a run such as
// currency conversion or matching.
type ProgressTracker struct {
	logger      Logger
	phase       string
	total       int
	done        int
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// NewProgressTracker creates a tracker for phase. A zero interval logs at most
// every 5 seconds.
func NewProgressTracker(phase string, interval time.Duration, log Logger) *ProgressTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := time.Now()
	return &ProgressTracker{
		logger:      OrGlobal(log).WithComponent("progress").WithField("phase", phase),
		phase:       phase,
		startTime:   now,
		lastLogTime: now,
		logInterval: interval,
	}
}

// Update records done out of total, logging when the interval has elapsed
// or the phase has finished.
func (p *ProgressTracker) Update(done, total int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.done, p.total = done, total
	now := time.Now()
	if done >= total || now.Sub(p.lastLogTime) >= p.logInterval {
		p.logProgress(now)
		p.lastLogTime = now
	}
}

// Callback adapts the tracker to the func(done, total) hooks used by the
// converter and the matcher. next may be nil.
func (p *ProgressTracker) Callback(next func(done, total int)) func(done, total int) {
	return func(done, total int) {
		p.Update(done, total)
		if next != nil {
			next(done, total)
		}
	}
}

// Stats returns current progress statistics
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stats(time.Now())
}

func (p *ProgressTracker) stats(now time.Time) ProgressStats {
	elapsed := now.Sub(p.startTime)
	var percentage float64
	if p.total > 0 {
		percentage = float64(p.done) / float64(p.total) * 100
	}
	return ProgressStats{
		Phase:      p.phase,
		Done:       p.done,
		Total:      p.total,
		Percentage: percentage,
		Elapsed:    elapsed,
	}
}

func (p *ProgressTracker) logProgress(now time.Time) {
	s := p.stats(now)
	p.logger.WithFields(Fields{
		"done":       s.Done,
		"total":      s.Total,
		"percentage": fmt.Sprintf("%.1f%%", s.Percentage),
		"elapsed":    s.Elapsed.String(),
	}).Debug("Progress update")
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Phase      string        `json:"phase"`
	Done       int           `json:"done"`
	Total      int           `json:"total"`
	Percentage float64       `json:"percentage"`
	Elapsed    time.Duration `json:"elapsed"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	return fmt.Sprintf("%s: %d/%d (%.1f%%), elapsed: %v",
		ps.Phase, ps.Done, ps.Total, ps.Percentage, ps.Elapsed)
}

// OperationLogger provides structured logging for operations with timing
type OperationLogger struct {
	logger    Logger
	operation string
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, log Logger) *OperationLogger {
	ol := &OperationLogger{
		logger:    OrGlobal(log).WithField("operation", operation),
		operation: operation,
		startTime: time.Now(),
	}
	ol.logger.Debug("Starting operation")
	return ol
}

// WithFields adds fields to every subsequent entry.
func (ol *OperationLogger) WithFields(fields Fields) *OperationLogger {
	ol.logger = ol.logger.WithFields(fields)
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithField("step", step).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string, fields Fields) {
	ol.logger.WithFields(fields).WithFields(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	}).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}).Error(message)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, log Logger, fn func() error) error {
	ol := NewOperationLogger(operation, log)
	if err := fn(); err != nil {
		ol.Error(err, "Operation failed")
		return err
	}
	ol.Success("Operation completed", nil)
	return nil
}
