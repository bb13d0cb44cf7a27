package scenario

import (
	"errors"
	"time"

	"github.com/compose-network/ledger-harness/x/ledger"
)

// State is where a scenario is in its lifecycle.
type State string

const (
	StatePending   State = "PENDING"
	StateSubmitted State = "SUBMITTED"
	StateCommitted State = "COMMITTED"
	StateRejected  State = "REJECTED"
	StateTimedOut  State = "TIMED_OUT"
	StateErrored   State = "ERRORED"
	StateSkipped   State = "SKIPPED"
)

// Record is the outcome of one scenario.
type Record struct {
	Name     string        `json:"name"               yaml:"name"`
	Group    string        `json:"group,omitempty"    yaml:"group,omitempty"`
	Node     string        `json:"node"               yaml:"node"`
	State    State         `json:"state"              yaml:"state"`
	Passed   bool          `json:"passed"             yaml:"passed"`
	Expected string        `json:"expected"           yaml:"expected"`
	Actual   ledger.Status `json:"actual"             yaml:"actual"`
	TxHash   string        `json:"tx_hash,omitempty"  yaml:"tx_hash,omitempty"`
	Detail   string        `json:"detail,omitempty"   yaml:"detail,omitempty"`
	Attempts int           `json:"attempts"           yaml:"attempts"`
	Duration time.Duration `json:"duration"           yaml:"duration"`
	Err      error         `json:"-"                  yaml:"-"`
	Error    string        `json:"error,omitempty"    yaml:"error,omitempty"`
}

// Report collects records in execution order.
type Report struct {
	RunID    string    `json:"run_id"   yaml:"run_id"`
	Policy   Policy    `json:"policy"   yaml:"policy"`
	Started  time.Time `json:"started"  yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	Records  []Record  `json:"records"  yaml:"records"`
}

// Passed counts passing scenarios.
func (r Report) Passed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Passed {
			n++
		}
	}
	return n
}

// Failed counts scenarios that ran and did not pass.
func (r Report) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if !rec.Passed && rec.State != StateSkipped {
			n++
		}
	}
	return n
}

// Skipped counts scenarios that never ran.
func (r Report) Skipped() int {
	n := 0
	for _, rec := range r.Records {
		if rec.State == StateSkipped {
			n++
		}
	}
	return n
}

// OK reports a run without failures.
func (r Report) OK() bool {
	return r.Failed() == 0
}

// Err joins the errors of every failed scenario.
func (r Report) Err() error {
	var out []error
	for _, rec := range r.Records {
		if rec.Err != nil && rec.State != StateSkipped {
			out = append(out, rec.Err)
		}
	}
	return errors.Join(out...)
}

// Get returns the record of a scenario by name.
func (r Report) Get(name string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Name == name {
			return rec, true
		}
	}
	return Record{}, false
}
