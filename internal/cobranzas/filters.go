package cobranzas

import (
	"fmt"
	"strings"
)

// Filters narrows which overdue installments enter an aggregation.
// Zero values mean "no constraint"; MaxDays 0 leaves the range open.
// MinOverdueCount applies to the per-client view only, after grouping.
type Filters struct {
	MinDays         int
	MaxDays         int
	Analyst         string
	MinOverdueCount int
}

// Validate rejects malformed filter combinations.
func (f Filters) Validate() error {
	if f.MinDays < 0 || f.MaxDays < 0 || f.MinOverdueCount < 0 {
		return validationf("filter values must not be negative")
	}
	if f.MaxDays > 0 && f.MaxDays < f.MinDays {
		return validationf("days-overdue range %d-%d is inverted", f.MinDays, f.MaxDays)
	}
	return nil
}

// Signature is a stable cache key component: equal filters always yield
// the same signature.
func (f Filters) Signature() string {
	return fmt.Sprintf("d:%d-%d|a:%s|c:%d",
		f.MinDays, f.MaxDays, strings.TrimSpace(f.Analyst), f.MinOverdueCount)
}

// matchDays reports whether a days-overdue value falls in the filter range.
func (f Filters) matchDays(days int) bool {
	if days < f.MinDays {
		return false
	}
	if f.MaxDays > 0 && days > f.MaxDays {
		return false
	}
	return true
}

// matchAnalyst reports whether an assignee key passes the analyst filter.
func (f Filters) matchAnalyst(assignee string) bool {
	want := strings.TrimSpace(f.Analyst)
	return want == "" || want == assignee
}
