package pipeline

import "fmt"

// ItemResult is the outcome of processing one sub-item of a stage (one album,
// one event, one setlist). A skipped item never fails the stage.
type ItemResult struct {
	Skipped bool
	Reason  string
	Err     error
}

// OK marks an item processed.
func OK() ItemResult { return ItemResult{} }

// Skip marks an item skipped with a reason and the causing error, if any.
func Skip(reason string, err error) ItemResult {
	return ItemResult{Skipped: true, Reason: reason, Err: err}
}

// Summary aggregates item results for one stage run.
type Summary struct {
	Processed int
	Skipped   int
	Errors    []error
}

// Add folds one item result into the summary.
func (s *Summary) Add(r ItemResult) {
	if r.Skipped {
		s.Skipped++
		if r.Err != nil {
			s.Errors = append(s.Errors, fmt.Errorf("%s: %w", r.Reason, r.Err))
		}
		return
	}
	s.Processed++
}

func (s *Summary) String() string {
	return fmt.Sprintf("processed=%d skipped=%d errors=%d", s.Processed, s.Skipped, len(s.Errors))
}
