package timetable

import "strings"

// Day is a teaching weekday. The set is closed and ordered Monday..Friday.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
)

const (
	// OpeningHour is the first teachable slot of the day.
	OpeningHour = 9
	// ClosingHour is the clock hour at which teaching must have ended.
	ClosingHour = 18
	// LunchHour is reserved and can never be part of a block.
	LunchHour = 13
)

var dayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// Days returns the weekdays in search order.
func Days() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// Hours returns the one-hour slots of a teaching day (9..17) in search order.
func Hours() []int {
	hours := make([]int, 0, ClosingHour-OpeningHour)
	for h := OpeningHour; h < ClosingHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Valid reports whether the day belongs to the teaching week.
func (d Day) Valid() bool {
	return d >= Monday && d <= Friday
}

func (d Day) String() string {
	if !d.Valid() {
		return "Unknown"
	}
	return dayNames[d]
}

// ParseDay resolves a weekday name case-insensitively.
func ParseDay(raw string) (Day, bool) {
	raw = strings.TrimSpace(raw)
	for i, name := range dayNames {
		if strings.EqualFold(name, raw) {
			return Day(i), true
		}
	}
	return 0, false
}

func validHour(h int) bool {
	return h >= OpeningHour && h < ClosingHour
}
