package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"visitordesk/internal/logging"
)

const dateLayout = "2006-01-02"

// Holiday is one public holiday.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"localName"`
}

// HolidaySource lists the public holidays of a year.
type HolidaySource interface {
	Holidays(ctx context.Context, year int) ([]Holiday, error)
}

// NagerSource reads holidays from the date.nager.at public API.
type NagerSource struct {
	BaseURL string
	Country string
	HTTP    *http.Client
}

func NewNagerSource(baseURL, country string) *NagerSource {
	return &NagerSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Country: country,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *NagerSource) Holidays(ctx context.Context, year int) ([]Holiday, error) {
	url := fmt.Sprintf("%s/%d/%s", n.BaseURL, year, n.Country)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("holiday service returned %s", resp.Status)
	}
	var out []Holiday
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}
	return out, nil
}

// Date rejection reasons.
const (
	ReasonInvalid = "invalid"
	ReasonPast    = "past"
	ReasonWeekend = "weekend"
	ReasonHoliday = "holiday"
)

// DateError explains why a date cannot be booked and suggests the next one
// that can.
type DateError struct {
	Date    string
	Reason  string
	Holiday string
	Next    string
}

func (e *DateError) Error() string {
	var why string
	switch e.Reason {
	case ReasonHoliday:
		why = e.Holiday
	case ReasonWeekend:
		why = "weekend"
	case ReasonPast:
		why = "date has passed"
	default:
		return fmt.Sprintf("selected date %q is not a valid date", e.Date)
	}
	if e.Next == "" {
		return fmt.Sprintf("selected date is invalid (%s)", why)
	}
	return fmt.Sprintf("selected date is invalid (%s); next available: %s", why, e.Next)
}

// Calendar decides which dates are bookable: not past, not a weekend, not a
// holiday. Holidays are the configured static dates plus those fetched from
// Source, cached per year. Fetch failures are logged and ignored.
type Calendar struct {
	Source   HolidaySource
	Location *time.Location
	Now      func() time.Time
	Log      *logrus.Logger

	static map[string]string
	mu     sync.Mutex
	years  map[int]map[string]string
}

// NewCalendar builds a calendar. Static entries are "YYYY-MM-DD" or
// "YYYY-MM-DD=Name".
func NewCalendar(static []string, src HolidaySource, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{
		Source:   src,
		Location: loc,
		Now:      time.Now,
		static:   make(map[string]string),
		years:    make(map[int]map[string]string),
	}
	for _, s := range static {
		date, name, _ := strings.Cut(strings.TrimSpace(s), "=")
		if date == "" {
			continue
		}
		if name == "" {
			name = "holiday"
		}
		c.static[date] = name
	}
	return c
}

// HolidayName returns the holiday on date, if any.
func (c *Calendar) HolidayName(ctx context.Context, date string) (string, bool) {
	if name, ok := c.static[date]; ok {
		return name, true
	}
	d, err := time.ParseInLocation(dateLayout, date, c.Location)
	if err != nil {
		return "", false
	}
	name, ok := c.year(ctx, d.Year())[date]
	return name, ok
}

func (c *Calendar) year(ctx context.Context, year int) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.years[year]; ok {
		return m
	}
	if c.Source == nil {
		return nil
	}
	list, err := c.Source.Holidays(ctx, year)
	if err != nil {
		l := c.Log
		if l == nil {
			l = logging.Logger()
		}
		l.WithFields(logrus.Fields{"module": "registration", "year": year}).Warn("holiday fetch failed: " + err.Error())
		return nil
	}
	m := make(map[string]string, len(list))
	for _, h := range list {
		m[h.Date] = h.Name
	}
	c.years[year] = m
	return m
}

func (c *Calendar) today() time.Time {
	now := c.Now().In(c.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.Location)
}

// reason reports why date is not bookable, or "" when it is.
func (c *Calendar) reason(ctx context.Context, d time.Time) (string, string) {
	if d.Before(c.today()) {
		return ReasonPast, ""
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return ReasonWeekend, ""
	}
	if name, ok := c.HolidayName(ctx, d.Format(dateLayout)); ok {
		return ReasonHoliday, name
	}
	return "", ""
}

// Check returns a *DateError when date cannot be booked.
func (c *Calendar) Check(ctx context.Context, date string) error {
	d, err := time.ParseInLocation(dateLayout, date, c.Location)
	if err != nil {
		return &DateError{Date: date, Reason: ReasonInvalid}
	}
	reason, holiday := c.reason(ctx, d)
	if reason == "" {
		return nil
	}
	return &DateError{Date: date, Reason: reason, Holiday: holiday, Next: c.NextAvailable(ctx, date)}
}

// NextAvailable returns the first bookable date on or after from, or today
// when from is earlier. It gives up after a year.
func (c *Calendar) NextAvailable(ctx context.Context, from string) string {
	d, err := time.ParseInLocation(dateLayout, from, c.Location)
	if err != nil || d.Before(c.today()) {
		d = c.today()
	}
	for i := 0; i < 366; i++ {
		if r, _ := c.reason(ctx, d); r == "" {
			return d.Format(dateLayout)
		}
		d = d.AddDate(0, 0, 1)
	}
	return ""
}
