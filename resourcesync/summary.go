package resourcesync

import (
	"time"

	"github.com/jrsteele09/go-ledger-sync/classify"
)

type Outcome string

const (
	OutcomeLoaded  Outcome = "loaded"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// KeyResult is the outcome of one key within a LoadAll sweep.
type KeyResult struct {
	Key      Key               `json:"key"`
	Outcome  Outcome           `json:"outcome"`
	Category classify.Category `json:"category,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// Summary reports a LoadAll sweep. Results are in LoadAll order.
type Summary struct {
	TenantID   string      `json:"tenantId"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Results    []KeyResult `json:"results"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

func (s *Summary) add(r KeyResult) {
	switch r.Outcome {
	case OutcomeLoaded:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

// firstFailure is the category of the first failed key, or UNKNOWN.
func (s *Summary) firstFailure() classify.Category {
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			return r.Category
		}
	}
	return classify.Unknown
}

// CountByCategory counts failed keys per category.
func (s Summary) CountByCategory() map[classify.Category]int {
	out := make(map[classify.Category]int)
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			out[r.Category]++
		}
	}
	return out
}

func failedResult(key Key, ce *classify.Error) KeyResult {
	return KeyResult{Key: key, Outcome: OutcomeFailed, Category: ce.Category, Message: ce.Message}
}
