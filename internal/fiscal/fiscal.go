// Package fiscal implements Indian financial-year arithmetic (April to March).
package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StartMonth is the first month of the financial year.
const StartMonth = time.April

// StartYear returns the calendar year in which the financial year containing t begins.
func StartYear(t time.Time) int {
	if t.Month() >= StartMonth {
		return t.Year()
	}
	return t.Year() - 1
}

// FinancialYear returns the short form label, e.g. "2024-25" for 2024-04-01..2025-03-31.
func FinancialYear(t time.Time) string {
	return Label(StartYear(t))
}

// Label formats a start year as "YYYY-YY".
func Label(startYear int) string {
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

// Parse accepts "2024-25" or "2024-2025" and returns the start year.
func Parse(fy string) (int, error) {
	parts := strings.Split(strings.TrimSpace(fy), "-")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid financial year %q", fy)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 4 {
		return 0, fmt.Errorf("invalid financial year %q", fy)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid financial year %q", fy)
	}
	switch len(parts[1]) {
	case 2:
		if end != (start+1)%100 {
			return 0, fmt.Errorf("invalid financial year %q", fy)
		}
	case 4:
		if end != start+1 {
			return 0, fmt.Errorf("invalid financial year %q", fy)
		}
	default:
		return 0, fmt.Errorf("invalid financial year %q", fy)
	}
	return start, nil
}

// Normalize parses fy and returns its short form.
func Normalize(fy string) (string, error) {
	start, err := Parse(fy)
	if err != nil {
		return "", err
	}
	return Label(start), nil
}

// Quarter maps a calendar month to its financial quarter:
// Apr-Jun Q1, Jul-Sep Q2, Oct-Dec Q3, Jan-Mar Q4.
func Quarter(m time.Month) int {
	if m < time.January || m > time.December {
		return 0
	}
	return (int(m)+8)%12/3 + 1
}

// QuarterMonths returns the three calendar months of quarter q.
func QuarterMonths(q int) []time.Month {
	if q < 1 || q > 4 {
		return nil
	}
	first := time.Month((int(StartMonth)-1+(q-1)*3)%12 + 1)
	return []time.Month{first, first + 1, first + 2}
}

// Months returns the twelve months of a financial year in order, April first.
func Months() []time.Month {
	months := make([]time.Month, 0, 12)
	for i := 0; i < 12; i++ {
		months = append(months, time.Month((int(StartMonth)-1+i)%12+1))
	}
	return months
}

// CalendarYear returns the calendar year a month falls in for a financial year.
func CalendarYear(startYear int, m time.Month) int {
	if m >= StartMonth {
		return startYear
	}
	return startYear + 1
}

// MonthRange returns the first and last day of month m within financial year fy.
func MonthRange(fy string, m time.Month) (time.Time, time.Time, error) {
	start, err := Parse(fy)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if m < time.January || m > time.December {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %d", m)
	}
	from := time.Date(CalendarYear(start, m), m, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, -1), nil
}

// QuarterRange returns the first and last day of quarter q within fy.
func QuarterRange(fy string, q int) (time.Time, time.Time, error) {
	months := QuarterMonths(q)
	if months == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid quarter %d", q)
	}
	from, _, err := MonthRange(fy, months[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, to, err := MonthRange(fy, months[2])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// YearRange returns April 1 and March 31 of fy.
func YearRange(fy string) (time.Time, time.Time, error) {
	start, err := Parse(fy)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return time.Date(start, StartMonth, 1, 0, 0, 0, 0, time.UTC),
		time.Date(start+1, time.March, 31, 0, 0, 0, 0, time.UTC), nil
}
