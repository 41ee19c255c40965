package progress

import (
	"errors"
	"sync"
	"time"

	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/jobs"
	"github.com/thetakeaway/takeaway/src/utils"
)

type Stage string

const (
	StageConnected  Stage = "connected"
	StageSending    Stage = "sending"
	StageAnalyzing  Stage = "analyzing"
	StageExtracting Stage = "extracting"
	StageSaving     Stage = "saving"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

type Event struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Nothing is sent for a job after a terminal event.
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

var ConnectedEvent = Event{Stage: StageConnected, Progress: 0, Message: "Connected"}

const (
	MaxJobIDLength = 128

	// Events buffered per subscriber. A full ingestion emits six.
	bufferSize = 16
)

var (
	ErrRegistryFull = errors.New("too many progress subscriptions are open")
	ErrInvalidJobID = errors.New("invalid job id")
)

func ValidJobID(jobID string) bool {
	return jobID != "" && len(jobID) <= MaxJobIDLength
}

/*
Maps job ids to the one subscriber listening for that job's progress.

A client opens a subscription (over SSE or a WebSocket) with an id it made up,
then starts the ingestion with the same id. Emit never blocks: if a subscriber
falls behind, its oldest buffered event is dropped. Events for ids with no
subscriber are discarded.
*/
type Registry struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	maxJobs int
	ttl     time.Duration
	now     func() time.Time
}

func NewRegistry(maxJobs int, ttl time.Duration) *Registry {
	return &Registry{
		subs:    make(map[string]*Subscription),
		maxJobs: utils.OrDefault(maxJobs, 1024),
		ttl:     utils.OrDefault(ttl, 10*time.Minute),
		now:     time.Now,
	}
}

func NewRegistryFromConfig(cfg config.ProgressConfig) *Registry {
	return NewRegistry(cfg.MaxJobs, cfg.TTL)
}

type Subscription struct {
	JobID string

	registry   *Registry
	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	lastActive time.Time // guarded by registry.mu
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Closed when the subscription is closed, replaced, or evicted.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Takes whatever is still buffered without waiting. After Done is closed this
// is what was emitted before the subscription ended.
func (s *Subscription) Pending() []Event {
	var pending []Event
	for {
		select {
		case ev := <-s.events:
			pending = append(pending, ev)
		default:
			return pending
		}
	}
}

func (s *Subscription) Close() {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	s.registry.removeLocked(s)
}

func (s *Subscription) closeLocked() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Opens the subscription for jobID. An existing subscription for the same id
// is closed and replaced.
func (r *Registry) Register(jobID string) (*Subscription, error) {
	if !ValidJobID(jobID) {
		return nil, ErrInvalidJobID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if old, ok := r.subs[jobID]; ok {
		r.removeLocked(old)
	} else if len(r.subs) >= r.maxJobs {
		r.sweepLocked(now)
		if len(r.subs) >= r.maxJobs {
			return nil, ErrRegistryFull
		}
	}

	sub := &Subscription{
		JobID:      jobID,
		registry:   r,
		events:     make(chan Event, bufferSize),
		done:       make(chan struct{}),
		lastActive: now,
	}
	r.subs[jobID] = sub
	return sub, nil
}

// Delivers ev to the subscriber for jobID, if there is one. Never blocks.
// Reports whether anyone was listening.
func (r *Registry) Emit(jobID string, ev Event) bool {
	if jobID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[jobID]
	if !ok {
		return false
	}
	sub.lastActive = r.now()

	select {
	case sub.events <- ev:
		return true
	default:
	}

	// Slow consumer. Drop the oldest event to make room.
	select {
	case <-sub.events:
	default:
	}
	select {
	case sub.events <- ev:
	default:
	}
	return true
}

func (r *Registry) Close(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[jobID]; ok {
		r.removeLocked(sub)
	}
}

// Closes subscriptions idle for longer than the TTL. Returns how many were
// closed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.now())
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) sweepLocked(now time.Time) int {
	swept := 0
	for _, sub := range r.subs {
		if now.Sub(sub.lastActive) > r.ttl {
			r.removeLocked(sub)
			swept++
		}
	}
	return swept
}

func (r *Registry) removeLocked(sub *Subscription) {
	if current, ok := r.subs[sub.JobID]; ok && current == sub {
		delete(r.subs, sub.JobID)
	}
	sub.closeLocked()
}

// Sweeps the registry on an interval until the job is canceled. A negative
// interval turns sweeping off; Register still evicts expired entries when full.
func RunJanitor(r *Registry, interval time.Duration) *jobs.Job {
	if interval < 0 {
		return jobs.Noop()
	}
	return jobs.Periodic("progress janitor", utils.OrDefault(interval, time.Minute), func(job *jobs.Job) {
		if swept := r.Sweep(); swept > 0 {
			job.Logger.Info().Int("swept", swept).Int("remaining", r.Len()).Msg("evicted idle progress subscriptions")
		}
	})
}
