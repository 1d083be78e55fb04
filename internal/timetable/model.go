// Package timetable places course sections into weekly room/hour blocks using
// a greedy first-fit search over room and professor occupancy grids.
package timetable

// Section is one teaching offering that needs a single weekly block.
type Section struct {
	SectionID     string
	CourseName    string
	CourseCode    string
	SectionNumber string
	ProfessorID   string
	ProfessorName string
	CreditHours   int
	Period        string
}

// Room is a teaching room. The order in which rooms are supplied is the order
// in which they are tried.
type Room struct {
	RoomID   string
	Name     string
	Capacity int
}

// Entry is a committed placement of a section.
type Entry struct {
	Section      Section
	Day          Day
	StartHour    int
	EndHour      int // exclusive
	RoomID       string
	RoomName     string
	RoomCapacity int
}

// Hours expands the entry into its occupied one-hour slots.
func (e Entry) Hours() []int {
	hours := make([]int, 0, e.EndHour-e.StartHour)
	for h := e.StartHour; h < e.EndHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Overlaps reports whether two entries share a day and at least one hour.
func (e Entry) Overlaps(other Entry) bool {
	return e.Day == other.Day && e.StartHour < other.EndHour && other.StartHour < e.EndHour
}
