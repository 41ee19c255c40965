package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thetakeaway/takeaway/src/logging"
)

// A Job is a background task that can be told to stop and waited on. The
// server's long-running goroutines, the HTTP listener and the progress
// janitor, are started as Jobs so shutdown can wait for them.
type Job struct {
	Name   string
	Ctx    context.Context
	Logger zerolog.Logger
	cancel func()
	done   chan struct{}
}

func New(name string) *Job {
	return NewWithParent(context.Background(), name)
}

// Like New, but the Job's context inherits values and cancellation from
// parent.
func NewWithParent(parent context.Context, name string) *Job {
	logger := logging.With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(parent)
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job{
		Name:   name,
		Ctx:    ctx,
		Logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// A Job that is already finished. Useful when a feature is disabled but the
// caller still wants something to put in a Jobs list.
func Noop() *Job {
	job := New("noop")
	job.Finish()
	return job
}

// Starts fn in a goroutine and finishes the Job when it returns. Panics are
// logged, not propagated.
func Run(name string, fn func(job *Job)) *Job {
	job := New(name)
	go func() {
		defer job.Finish()
		defer logging.LogPanics(&job.Logger)
		fn(job)
	}()
	return job
}

// Calls fn every interval until the Job is canceled.
func Periodic(name string, interval time.Duration, fn func(job *Job)) *Job {
	return Run(name, func(job *Job) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				fn(job)
			case <-job.Canceled():
				return
			}
		}
	})
}

// Cancels the Job's context. Called from outside the job, e.g. on shutdown.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

// Marks the Job as finished. Called by the job itself when its work is done.
func (j *Job) Finish() *Job {
	close(j.done)
	j.cancel()
	return j
}

func (j *Job) Finished() <-chan struct{} {
	return j.done
}

type Jobs []*Job

// Cancels all jobs and waits for them to finish, up to timeout. Returns the
// names of jobs that did not finish in time.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	allDoneChan := make(chan struct{})
	for _, job := range jobs {
		job.Cancel()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDoneChan)
	}()

	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDoneChan:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
			continue
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
