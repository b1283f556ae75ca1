package visitor

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Filter keeps records whose name, contact number, office or purpose
// contains term, ignoring case. An empty term keeps everything.
func Filter(records []Record, term string) []Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}
	return lo.Filter(records, func(r Record, _ int) bool {
		return strings.Contains(strings.ToLower(r.Name), term) ||
			strings.Contains(strings.ToLower(r.ContactNumber), term) ||
			strings.Contains(strings.ToLower(string(r.Office)), term) ||
			strings.Contains(strings.ToLower(r.Purpose), term)
	})
}

// Stats summarises a roster for the admin dashboard.
type Stats struct {
	Total         int            `json:"total"`
	VisitorsToday int            `json:"visitorsToday"`
	Pending       int            `json:"pending"`
	Processing    int            `json:"processing"`
	Processed     int            `json:"processed"`
	Declined      int            `json:"declined"`
	Overdue       int            `json:"overdue"`
	ByOffice      map[Office]int `json:"byOffice"`
}

// Summarize computes Stats at now in loc. A visitor counts for today when
// they timed in on the same calendar day.
func Summarize(records []Record, now time.Time, loc *time.Location, overdueAfter time.Duration) Stats {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(time.DateOnly)
	s := Stats{Total: len(records), ByOffice: map[Office]int{}}
	for _, r := range records {
		if r.TimeIn != nil && r.TimeIn.In(loc).Format(time.DateOnly) == today {
			s.VisitorsToday++
		}
		switch {
		case r.Processed:
			s.Processed++
		case r.ProcessingStartedTime != nil:
			s.Processing++
		case r.IsDeclined():
			s.Declined++
		default:
			s.Pending++
		}
		if IsOverdue(r, now, overdueAfter) {
			s.Overdue++
		}
		if r.Office != "" {
			s.ByOffice[r.Office]++
		}
	}
	return s
}
