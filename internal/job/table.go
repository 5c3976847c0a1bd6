package job

import "time"

// Table owns every job that has been launched and not yet reported as
// completed. Jobs are kept in launch order.
type Table struct {
	jobs  map[Handle]*Job
	order []Handle
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{jobs: make(map[Handle]*Job)}
}

// Add registers j and assigns it the lowest free display ID.
func (t *Table) Add(j *Job) Handle {
	j.ID = t.nextID()
	t.jobs[j.Handle] = j
	t.order = append(t.order, j.Handle)
	return j.Handle
}

func (t *Table) nextID() int {
	used := make(map[int]bool, len(t.jobs))
	for _, j := range t.jobs {
		used[j.ID] = true
	}
	id := 1
	for used[id] {
		id++
	}
	return id
}

// Get returns the job for h.
func (t *Table) Get(h Handle) (*Job, bool) {
	j, ok := t.jobs[h]
	return j, ok
}

// Remove drops the job for h and releases anything it still holds.
// It returns false if h does not name a job.
func (t *Table) Remove(h Handle) bool {
	j, ok := t.jobs[h]
	if !ok {
		return false
	}
	j.IO.CloseOwned()
	delete(t.jobs, h)
	for i, o := range t.order {
		if o == h {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Jobs returns the jobs in launch order. The slice is a copy, so callers
// may remove jobs while ranging over it.
func (t *Table) Jobs() []*Job {
	out := make([]*Job, 0, len(t.order))
	for _, h := range t.order {
		out = append(out, t.jobs[h])
	}
	return out
}

// Len returns the number of jobs in the table.
func (t *Table) Len() int {
	return len(t.jobs)
}

// FindProcess locates the stage whose pid matches across all jobs.
func (t *Table) FindProcess(pid int) (*Job, *Process) {
	if pid <= 0 {
		return nil, nil
	}
	for _, h := range t.order {
		j := t.jobs[h]
		for _, p := range j.Processes {
			if p.Pid == pid {
				return j, p
			}
		}
	}
	return nil, nil
}

// ByID returns the job with display ID id.
func (t *Table) ByID(id int) (*Job, bool) {
	for _, h := range t.order {
		if j := t.jobs[h]; j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// ByPgid returns the job whose process group is pgid.
func (t *Table) ByPgid(pgid int) (*Job, bool) {
	if pgid <= 0 {
		return nil, false
	}
	for _, h := range t.order {
		if j := t.jobs[h]; j.Pgid == pgid {
			return j, true
		}
	}
	return nil, false
}

// Latest returns the most recently launched job, optionally restricted to
// jobs in state want.
func (t *Table) Latest(want ...State) (*Job, bool) {
	for i := len(t.order) - 1; i >= 0; i-- {
		j := t.jobs[t.order[i]]
		if len(want) == 0 {
			return j, true
		}
		for _, s := range want {
			if j.State() == s {
				return j, true
			}
		}
	}
	return nil, false
}

// Info is a read-only view of a job for listings and the status socket.
type Info struct {
	ID      int       `json:"id" yaml:"id"`
	Handle  string    `json:"handle" yaml:"handle"`
	Pgid    int       `json:"pgid" yaml:"pgid"`
	State   string    `json:"state" yaml:"state"`
	Command string    `json:"command" yaml:"command"`
	Pids    []int     `json:"pids,omitempty" yaml:"pids,omitempty"`
	Started time.Time `json:"started" yaml:"started"`
}

// Info returns the read-only view of j.
func (j *Job) Info() Info {
	return Info{
		ID:      j.ID,
		Handle:  j.Handle.String(),
		Pgid:    j.Pgid,
		State:   j.State().String(),
		Command: j.Command,
		Pids:    j.Pids(),
		Started: j.Started,
	}
}

// Snapshot returns an Info for every job, in launch order.
func (t *Table) Snapshot() []Info {
	infos := make([]Info, 0, len(t.order))
	for _, h := range t.order {
		infos = append(infos, t.jobs[h].Info())
	}
	return infos
}
