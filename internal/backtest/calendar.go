package backtest

import "time"

// BusinessDays returns every weekday in [start, end] at midnight UTC, in
// order. Exchange holidays are not modeled here; a holiday simply has no bars
// and the driver logs it as a skipped day.
func BusinessDays(start, end time.Time) []time.Time {
	start = midnightUTC(start)
	end = midnightUTC(end)
	if end.Before(start) {
		return nil
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
