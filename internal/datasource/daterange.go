package datasource

import (
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// DateRange is an inclusive dateDebut/dateFin pair in YYYY-MM-DD form.
type DateRange struct {
	Start string
	End   string
}

func SingleDay(t time.Time) DateRange {
	d := t.Format(dayLayout)
	return DateRange{Start: d, End: d}
}

// ParseDateRange interprets a timetable date option relative to now:
// "" or today, yesterday, tomorrow, week, nextweek, prevweek/lastweek,
// "start=A,end=B", "A:B" or a single "YYYY-MM-DD". Weeks start on Monday.
func ParseDateRange(opt string, now time.Time) (DateRange, error) {
	o := strings.ToLower(strings.TrimSpace(opt))
	switch o {
	case "", "today":
		return SingleDay(now), nil
	case "yesterday":
		return SingleDay(now.AddDate(0, 0, -1)), nil
	case "tomorrow":
		return SingleDay(now.AddDate(0, 0, 1)), nil
	case "week":
		return week(now, 0), nil
	case "nextweek":
		return week(now, 1), nil
	case "prevweek", "lastweek":
		return week(now, -1), nil
	}

	var r DateRange
	switch {
	case strings.Contains(o, "start=") || strings.Contains(o, "end="):
		for _, part := range strings.Split(o, ",") {
			k, v, _ := strings.Cut(part, "=")
			switch strings.TrimSpace(k) {
			case "start":
				r.Start = strings.TrimSpace(v)
			case "end":
				r.End = strings.TrimSpace(v)
			}
		}
		if r.Start == "" && r.End == "" {
			return DateRange{}, fmt.Errorf("datasource: invalid date range %q", opt)
		}
		if r.Start == "" {
			r.Start = r.End
		}
		if r.End == "" {
			r.End = r.Start
		}
	case strings.Contains(o, ":"):
		a, b, _ := strings.Cut(o, ":")
		r = DateRange{Start: strings.TrimSpace(a), End: strings.TrimSpace(b)}
		if r.Start == "" || r.End == "" {
			return DateRange{}, fmt.Errorf("datasource: invalid date range %q", opt)
		}
	default:
		r = DateRange{Start: o, End: o}
	}

	start, err := time.Parse(dayLayout, r.Start)
	if err != nil {
		return DateRange{}, fmt.Errorf("datasource: invalid date option %q", opt)
	}
	end, err := time.Parse(dayLayout, r.End)
	if err != nil {
		return DateRange{}, fmt.Errorf("datasource: invalid date option %q", opt)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("datasource: range %q ends before it starts", opt)
	}
	return r, nil
}

func week(now time.Time, offset int) DateRange {
	wd := int(now.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := now.AddDate(0, 0, 1-wd+7*offset)
	return DateRange{Start: monday.Format(dayLayout), End: monday.AddDate(0, 0, 6).Format(dayLayout)}
}
