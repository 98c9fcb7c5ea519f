package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the yyyy-mm-dd wire format for calendar dates
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// ParseDate converts a yyyy-mm-dd formatted string into a UTC midnight time
func ParseDate(dateStr string) (time.Time, error) {
	parts := strings.Split(dateStr, "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid date format, expected yyyy-mm-dd")
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year: %v", err)
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month: %v", err)
	}

	dayOfMonth, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day: %v", err)
	}

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month must be between 1 and 12")
	}

	if dayOfMonth < 1 || dayOfMonth > DaysInMonth(year, month) {
		return time.Time{}, fmt.Errorf("day must be between 1 and %d", DaysInMonth(year, month))
	}

	return time.Date(year, time.Month(month), dayOfMonth, 0, 0, 0, 0, time.UTC), nil
}

// DaysInMonth returns the number of days in a given month
func DaysInMonth(year, month int) int {
	if month == 2 {
		// Check for leap year
		if (year%4 == 0 && year%100 != 0) || (year%400 == 0) {
			return 29
		}
		return 28
	}

	// Months with 30 days: April, June, September, November
	if month == 4 || month == 6 || month == 9 || month == 11 {
		return 30
	}

	return 31
}

// TruncateDay drops the clock part of t, keeping the calendar date it has in its own location
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RentalDays counts the days of a rental; both start and end dates are included
func RentalDays(start, end time.Time) int {
	return DaysBetween(start, end) + 1
}

// DaysBetween returns the number of calendar days from start to end (negative if end is earlier)
func DaysBetween(start, end time.Time) int {
	return int(TruncateDay(end).Sub(TruncateDay(start)) / day)
}

// WeekendDays counts the Saturdays and Sundays between start and end inclusive
func WeekendDays(start, end time.Time) int {
	total := RentalDays(start, end)
	if total <= 0 {
		return 0
	}

	weeks := total / 7
	count := weeks * 2

	// Walk the remainder days that don't make up a full week
	cur := TruncateDay(start).AddDate(0, 0, weeks*7)
	for i := 0; i < total%7; i++ {
		if IsWeekend(cur.Weekday()) {
			count++
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return count
}

func IsWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// ContainsWeekday reports whether any day between start and end inclusive falls on one of days
func ContainsWeekday(start, end time.Time, days []time.Weekday) bool {
	total := RentalDays(start, end)
	if total >= 7 {
		return len(days) > 0
	}
	cur := TruncateDay(start)
	for i := 0; i < total; i++ {
		for _, d := range days {
			if cur.Weekday() == d {
				return true
			}
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return false
}
