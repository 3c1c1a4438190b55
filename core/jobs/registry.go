// Package jobs tracks background jobs and collects them when they exit.
package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a job.
type State int

const (
	Running State = iota
	Exited
	// Stopped jobs were suspended in the foreground and are waiting for a
	// signal to continue.
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Exited:
		return "Done"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Job is a background process group started by the shell.
type Job struct {
	ID uuid.UUID
	// Number is the small job number shown to the user, e.g. [1].
	Number int
	Name   string
	Pid    int
	Pgid   int

	State    State
	ExitCode int
	Started  time.Time
}

// Registry is the table of tracked background jobs keyed by pid. It's safe
// for concurrent use; the lock is only held for the map operation.
type Registry struct {
	mu   sync.Mutex
	jobs map[int]*Job
	now  func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[int]*Job),
		now:  time.Now,
	}
}

// Add starts tracking a running job and returns it.
func (r *Registry) Add(name string, pid, pgid int) Job {
	return r.add(name, pid, pgid, Running)
}

// AddStopped starts tracking a job that was stopped in the foreground.
func (r *Registry) AddStopped(name string, pid, pgid int) Job {
	return r.add(name, pid, pgid, Stopped)
}

func (r *Registry) add(name string, pid, pgid int, state State) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &Job{
		ID:      uuid.New(),
		Number:  r.nextNumber(),
		Name:    name,
		Pid:     pid,
		Pgid:    pgid,
		State:   state,
		Started: r.now(),
	}
	r.jobs[pid] = job
	return *job
}

// nextNumber returns the lowest job number not in use. Must hold mu.
func (r *Registry) nextNumber() int {
	used := make(map[int]bool, len(r.jobs))
	for _, job := range r.jobs {
		used[job.Number] = true
	}

	n := 1
	for used[n] {
		n++
	}
	return n
}

// Remove stops tracking pid. A missing entry was already removed and is
// reported with ok == false.
func (r *Registry) Remove(pid int) (job Job, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, ok := r.jobs[pid]
	if !ok {
		return Job{}, false
	}
	delete(r.jobs, pid)
	return *found, true
}

// Lookup returns the job for pid.
func (r *Registry) Lookup(pid int) (job Job, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, ok := r.jobs[pid]
	if !ok {
		return Job{}, false
	}
	return *found, true
}

// Pids returns the tracked pids in ascending order.
func (r *Registry) Pids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, len(r.jobs))
	for pid := range r.jobs {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

// List returns a snapshot of the tracked jobs ordered by job number.
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.jobs)
}
