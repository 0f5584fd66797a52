package shell

import (
	"sort"
	"sync"
)

// JobState is a job's place in the RUNNING -> STOPPED/DONE lifecycle.
type JobState int

const (
	JobRunning JobState = iota
	JobStopped
	JobDone
)

func (st JobState) String() string {
	switch st {
	case JobRunning:
		return "Running"
	case JobStopped:
		return "Stopped"
	case JobDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Job tracks one pipeline launched into its own process group. The Job
// type's PIDs field holds every process in the group so the reaper can tell a
// partial exit (one stage of a pipeline finishing) from the whole job being
// done.
type Job struct {
	ID         int
	PGID       int
	PIDs       []int
	Command    string
	State      JobState
	Status     int  // exit status of the last member to finish, for $?
	Background bool // true for `cmd &`; the reaper prints Done/Stopped notifications only for background jobs

	pending  map[int]bool // pid -> still running
	notified bool
}

// JobTable is the shell's registry of launched jobs: every forked pipeline,
// foreground or background, is tracked here until it is removed. All
// access goes through its methods, which serialize against the SIGCHLD
// reaper goroutine started by the executor.
type JobTable struct {
	mu      sync.Mutex
	jobs    map[int]*Job
	nextID  int
	waiters map[int][]chan struct{}
}

func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[int]*Job), waiters: make(map[int][]chan struct{})}
}

// WaitForChange returns a channel that is closed the next time the named
// job's state is updated by MarkExited or MarkStopped (MarkRunning does not
// fire it).
// The executor's foreground wait loop uses this instead of calling wait4
// itself, so the SIGCHLD-driven reaper goroutine remains the single owner
// of reaping (two independent wait4 callers can race for the same child).
func (t *JobTable) WaitForChange(id int) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan struct{})
	t.waiters[id] = append(t.waiters[id], ch)
	return ch
}

// fireWaiters closes and clears every channel registered for id. Callers
// must hold t.mu.
func (t *JobTable) fireWaiters(id int) {
	for _, ch := range t.waiters[id] {
		close(ch)
	}
	delete(t.waiters, id)
}

// Add registers a new job and assigns it the next small-integer ID. IDs
// are never reused, matching job-control shells' visible "[1] [2]"
// numbering.
func (t *JobTable) Add(pgid int, pids []int, command string, background bool) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	pending := make(map[int]bool, len(pids))
	for _, p := range pids {
		pending[p] = true
	}
	j := &Job{
		ID:         t.nextID,
		PGID:       pgid,
		PIDs:       append([]int(nil), pids...),
		Command:    command,
		State:      JobRunning,
		Background: background,
		pending:    pending,
	}
	t.jobs[j.ID] = j
	return j
}

// Lookup returns the job with the given ID.
func (t *JobTable) Lookup(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return j, ok
}

// SetBackground updates whether id is tracked as a background job, used by
// `fg`/`bg` when they move a job across the foreground/background line so
// later Done/Stopped notifications are announced correctly for its new
// status.
func (t *JobTable) SetBackground(id int, background bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		j.Background = background
	}
}

// IsBackground reports whether id is currently tracked as a background job,
// read under the table's lock since the reaper and `fg`/`bg` can touch the
// same Job's Background field from different goroutines.
func (t *JobTable) IsBackground(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return ok && j.Background
}

// StateOf returns a job's current state and status under the table's lock,
// for callers (like the foreground wait loop) that read a *Job concurrently
// mutated by the reaper and cannot simply dereference its fields.
func (t *JobTable) StateOf(id int) (state JobState, status int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return 0, 0, false
	}
	return j.State, j.Status, true
}

// ByPGID finds the job owning a process group.
func (t *JobTable) ByPGID(pgid int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.PGID == pgid {
			return j, true
		}
	}
	return nil, false
}

// Current returns the most recently added job still in the table, the
// target of a bare `fg`/`bg` with no job number.
func (t *JobTable) Current() (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *Job
	for _, j := range t.jobs {
		if best == nil || j.ID > best.ID {
			best = j
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// All returns every tracked job, sorted by ID, for the `jobs` builtin.
func (t *JobTable) All() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// MarkExited records that one member of a job's process group exited with
// status, and flips the job to Done once every tracked PID has. It returns
// true exactly once, on the transition to Done, so callers print the
// "Done" notification a single time.
func (t *JobTable) MarkExited(pid, status int) (job *Job, justFinished bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, j := range t.jobs {
		if _, tracked := j.pending[pid]; !tracked {
			continue
		}
		j.pending[pid] = false
		j.Status = status
		done := true
		for _, running := range j.pending {
			if running {
				done = false
				break
			}
		}
		if done && j.State != JobDone {
			j.State = JobDone
			t.fireWaiters(j.ID)
			if !j.notified {
				j.notified = true
				return j, true
			}
		}
		return j, false
	}
	return nil, false
}

// MarkStopped flips a job to Stopped, e.g. on receipt of SIGTSTP/SIGTTIN/
// SIGTTOU by its process group.
func (t *JobTable) MarkStopped(pgid int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.PGID == pgid {
			j.State = JobStopped
			t.fireWaiters(j.ID)
			return j, true
		}
	}
	return nil, false
}

// MarkRunning flips a stopped job back to Running, e.g. after `bg`/`fg`
// sends SIGCONT.
func (t *JobTable) MarkRunning(pgid int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.PGID == pgid {
			j.State = JobRunning
			return j, true
		}
	}
	return nil, false
}

// Remove deletes a job from the table, freeing its ID for display purposes
// (though not for reassignment: nextID only ever increases).
func (t *JobTable) Remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}
