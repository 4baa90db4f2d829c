package syncer

import "time"

// ItemError describes one item that failed during a pass.
type ItemError struct {
	RemoteID string `json:"remoteId,omitempty"`
	Name     string `json:"name"`
	Message  string `json:"message"`
}

// Result summarizes one sync pass. Skipped items are also counted as
// succeeded.
type Result struct {
	ConnectionID string      `json:"connectionId"`
	Processed    int         `json:"processed"`
	Succeeded    int         `json:"succeeded"`
	Failed       int         `json:"failed"`
	Skipped      int         `json:"skipped"`
	Errors       []ItemError `json:"errors"`
	// Error holds the pass-fatal error, if any.
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Success reports whether the pass finished without any failure.
func (r *Result) Success() bool {
	return r.Error == "" && r.Failed == 0
}

func (r *Result) clone() *Result {
	cp := *r
	cp.Errors = append([]ItemError(nil), r.Errors...)
	return &cp
}

func (r *Result) succeed(skipped bool) {
	r.Processed++
	r.Succeeded++
	if skipped {
		r.Skipped++
	}
}

func (r *Result) fail(remoteID, name string, err error) {
	r.Processed++
	r.Failed++
	r.Errors = append(r.Errors, ItemError{RemoteID: remoteID, Name: name, Message: err.Error()})
}

// Progress is reported after every item of a pass.
type Progress struct {
	ConnectionID string `json:"connectionId"`
	Phase        string `json:"phase"`
	// Index is 1-based within the phase.
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Name      string `json:"name"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// ProgressFunc receives progress updates. It runs on the pass goroutine
// and must not block.
type ProgressFunc func(Progress)

// Completion is the payload of the pass-completed event.
type Completion struct {
	ConnectionID string `json:"connectionId"`
	Processed    int    `json:"processed"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}
