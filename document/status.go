package document

import "fmt"

// Status is the document lifecycle state. Progression is monotonic:
//
//	pending → text_extracting → text_extracted → generating_summary →
//	summary_generated → embedding_text → completed
//
// Failure is a parallel flag, not a state: a failed stage sets IsFailed while
// leaving Status at the in-progress value that was active when the failure
// occurred. That frozen value is the resumption marker for retries.
type Status string

const (
	StatusPending           Status = "pending"
	StatusTextExtracting    Status = "text_extracting"
	StatusTextExtracted     Status = "text_extracted"
	StatusGeneratingSummary Status = "generating_summary"
	StatusSummaryGenerated  Status = "summary_generated"
	StatusEmbeddingText     Status = "embedding_text"
	StatusCompleted         Status = "completed"
)

var statusOrder = map[Status]int{
	StatusPending:           0,
	StatusTextExtracting:    1,
	StatusTextExtracted:     2,
	StatusGeneratingSummary: 3,
	StatusSummaryGenerated:  4,
	StatusEmbeddingText:     5,
	StatusCompleted:         6,
}

// ParseStatus converts a persisted string into a Status, rejecting anything
// outside the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusOrder[st]; !ok {
		return "", fmt.Errorf("unknown document status %q", s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Before reports whether s precedes other in the lifecycle.
func (s Status) Before(other Status) bool {
	return statusOrder[s] < statusOrder[other]
}
