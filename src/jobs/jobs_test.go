package jobs

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			slowToStop("janitor", time.Millisecond*100),
			slowToStop("server", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500, "jobs did not finish fast enough")
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			slowToStop("janitor", time.Millisecond*100),
			slowToStop("server", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"server"}, unfinished)
	})
	t.Run("noop is already done", func(t *testing.T) {
		assert.Len(t, Jobs{Noop()}.CancelAndWait(time.Millisecond), 0)
	})
}

func TestRun(t *testing.T) {
	t.Run("finishes when fn returns", func(t *testing.T) {
		job := Run("once", func(job *Job) {})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			t.Fatal("job never finished")
		}
	})
	t.Run("survives panics", func(t *testing.T) {
		job := Run("panicky", func(job *Job) {
			panic("boom")
		})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			t.Fatal("job never finished")
		}
	})
}

func TestPeriodic(t *testing.T) {
	var calls atomic.Int32
	job := Periodic("tick", time.Millisecond*10, func(job *Job) {
		calls.Add(1)
	})
	time.Sleep(time.Millisecond * 100)
	unfinished := Jobs{job}.CancelAndWait(time.Second)
	assert.Len(t, unfinished, 0)
	assert.Greater(t, calls.Load(), int32(2))
}

func slowToStop(name string, timeout time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Ctx.Done()
		timer := time.NewTimer(timeout)
		<-timer.C
		job.Finish()
	}()
	return job
}
