package domain

import "time"

// EntityOutcome records how one entity's harvest ended.
type EntityOutcome struct {
	Entity Entity `json:"entity"`

	// Completed is true when paging and draining both finished. False means
	// the entity failed terminally (not found, fatal API error).
	Completed bool `json:"completed"`

	// Err holds the failure description for incomplete entities.
	Err string `json:"error,omitempty"`

	// Rows is the number of rows emitted for the entity this run.
	Rows int `json:"rows"`

	// Pending is the number of open items carried over to the next run.
	Pending int `json:"pending"`
}

// RunSummary is the final accounting of one harvest run: the only operator
// surface besides log lines.
type RunSummary struct {
	ID       string          `json:"id"`
	Harvest  string          `json:"harvest"`
	Started  time.Time       `json:"started"`
	Ended    time.Time       `json:"ended"`
	Outcomes []EntityOutcome `json:"outcomes"`
}

// Completed counts entities that finished cleanly.
func (s *RunSummary) Completed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Completed {
			n++
		}
	}
	return n
}

// Failed counts entities that ended with a terminal error.
func (s *RunSummary) Failed() int {
	return len(s.Outcomes) - s.Completed()
}

// Rows totals the rows emitted across all entities.
func (s *RunSummary) Rows() int {
	n := 0
	for _, o := range s.Outcomes {
		n += o.Rows
	}
	return n
}
