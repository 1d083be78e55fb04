package timetable

import "github.com/samber/lo"

// IsValidBlock decides whether a contiguous hour range may hold a class: it
// must not touch the lunch hour and must finish by closing time. Occupancy is
// not considered here.
func IsValidBlock(hours []int) bool {
	if len(hours) == 0 {
		return false
	}
	if lo.Contains(hours, LunchHour) {
		return false
	}
	return hours[len(hours)-1]+1 <= ClosingHour
}

// windows slides a window of the given width across the ordered hours and
// returns every candidate range, earliest start first.
func windows(hours []int, width int) [][]int {
	if width <= 0 || width > len(hours) {
		return nil
	}
	result := make([][]int, 0, len(hours)-width+1)
	for start := 0; start+width <= len(hours); start++ {
		result = append(result, hours[start:start+width])
	}
	return result
}
