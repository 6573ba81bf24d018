package domain

import "time"

// NextRunAfter advances one period from the given time. Monthly and
// quarterly cadences pin to the anchor day and clamp to month end, so a
// day-31 anchor firing into February lands on Feb 28/29, never March 3.
func NextRunAfter(from time.Time, freq Frequency, anchorDay int) (time.Time, error) {
	switch freq {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case FrequencyMonthly:
		return addMonthsClamped(from, 1, anchorDay), nil
	case FrequencyQuarterly:
		return addMonthsClamped(from, 3, anchorDay), nil
	default:
		return time.Time{}, ErrInvalidFrequency
	}
}

func addMonthsClamped(from time.Time, months, anchorDay int) time.Time {
	day := anchorDay
	if day <= 0 {
		day = from.Day()
	}

	year, month, _ := from.Date()
	target := time.Date(year, month+time.Month(months), 1, from.Hour(), from.Minute(), from.Second(), 0, from.Location())
	if last := daysInMonth(target); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

func daysInMonth(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNext.AddDate(0, 0, -1).Day()
}
