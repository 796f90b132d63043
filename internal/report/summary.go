package report

import "github.com/zmlAEQ/pingburst/internal/sender"

// FailureRecord is one failed payload in a Summary.
type FailureRecord struct {
	Index     int    `json:"index"`
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Attempts  int    `json:"attempts"`
	Reason    string `json:"reason,omitempty"`
}

// Summary is the machine-readable result of a run.
type Summary struct {
	TraceID   string          `json:"trace_id"`
	Total     int             `json:"total"`
	Confirmed int             `json:"confirmed"`
	Failed    int             `json:"failed"`
	Rounds    int             `json:"rounds"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Error     string          `json:"error,omitempty"`
	Failures  []FailureRecord `json:"failures,omitempty"`
}

func Summarize(rep *sender.Report, runErr error) Summary {
	s := Summary{}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	if rep == nil {
		return s
	}
	s.TraceID = rep.TraceID
	s.Total = len(rep.Outcomes)
	s.Confirmed = rep.Confirmed()
	s.Rounds = rep.Rounds
	s.ElapsedMs = rep.Elapsed.Milliseconds()
	for _, o := range rep.Failures() {
		f := FailureRecord{Index: o.Index, State: o.State.String(), Attempts: o.Attempts}
		if !o.Signature.IsZero() {
			f.Signature = o.Signature.String()
		}
		if o.Reason != nil {
			f.Reason = o.Reason.Error()
		}
		s.Failures = append(s.Failures, f)
	}
	s.Failed = len(s.Failures)
	return s
}
