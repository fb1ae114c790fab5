package cron

import (
	"sync"

	rcron "github.com/robfig/cron/v3"
)

// JobStatus is the lifecycle state of a scheduled job.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobIdle      JobStatus = "idle"
	JobCompleted JobStatus = "completed"
	JobCanceled  JobStatus = "canceled"
	JobFailed    JobStatus = "failed"
	JobStopped   JobStatus = "stopped"
)

// Handle controls one scheduled job. Recurring jobs move between running
// and idle; one-shot jobs end completed or failed. Done closes once the job
// reaches a terminal state.
type Handle interface {
	Cancel()
	Status() JobStatus
	Err() error
	Done() <-chan struct{}
	ID() int64
}

type job struct {
	scheduler *Scheduler
	id        int64
	entryID   rcron.EntryID
	done      chan struct{}

	mu     sync.RWMutex
	status JobStatus
	err    error
	once   sync.Once
}

func (j *job) Cancel() {
	if j == nil {
		return
	}
	j.once.Do(func() {
		if j.scheduler != nil {
			j.scheduler.release(j)
		}
		j.finish(JobCanceled, nil)
	})
}

func (j *job) Status() JobStatus {
	if j == nil {
		return JobStopped
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *job) Err() error {
	if j == nil {
		return nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

func (j *job) Done() <-chan struct{} {
	if j == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return j.done
}

func (j *job) ID() int64 {
	if j == nil {
		return 0
	}
	return j.id
}

func (j *job) set(status JobStatus, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.err = err
}

// finish records a terminal status and closes Done. The first terminal
// status wins.
func (j *job) finish(status JobStatus, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if isTerminal(j.status) {
		return
	}
	j.status = status
	j.err = err
	if j.done != nil {
		select {
		case <-j.done:
		default:
			close(j.done)
		}
	}
}

func isTerminal(status JobStatus) bool {
	switch status {
	case JobCompleted, JobCanceled, JobFailed, JobStopped:
		return true
	}
	return false
}
