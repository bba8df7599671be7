package billing

import "time"

// AddCycle computes a subscription end date from its start date. Month and
// year arithmetic is calendar-clamped: when the start day does not exist in
// the target month the date lands on that month's last valid day (Jan 31
// monthly -> Feb 28/29), never rolling over into the following month.
func AddCycle(start time.Time, cycle BillingCycle) time.Time {
	switch cycle {
	case CycleYearly:
		return addMonths(start, 12)
	default:
		return addMonths(start, 1)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	firstOfTarget := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := firstOfTarget.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, h, min, sec, t.Nanosecond(), t.Location())
}
