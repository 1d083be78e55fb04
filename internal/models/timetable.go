package models

import "time"

// CourseSection is a schedulable offering of a course in an academic period.
type CourseSection struct {
	ID            string `db:"id" json:"id"`
	CourseName    string `db:"course_name" json:"course_name"`
	CourseCode    string `db:"course_code" json:"course_code"`
	SectionNumber string `db:"section_number" json:"section_number"`
	ProfessorID   string `db:"professor_id" json:"professor_id"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
	CreditHours   int    `db:"credit_hours" json:"credit_hours"`
	Period        string `db:"period" json:"period"`
}

// Room is a teaching room available to the generator.
type Room struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Capacity int    `db:"capacity" json:"capacity"`
}

// TimetableRunStatus captures the outcome of a generation run.
type TimetableRunStatus string

const (
	TimetableRunCompleted TimetableRunStatus = "COMPLETED"
	TimetableRunFailed    TimetableRunStatus = "FAILED"
)

// TimetableRun is one persisted generation attempt for a period.
type TimetableRun struct {
	ID                string             `db:"id" json:"id"`
	Period            string             `db:"period" json:"period"`
	Version           int                `db:"version" json:"version"`
	Status            TimetableRunStatus `db:"status" json:"status"`
	SectionCount      int                `db:"section_count" json:"section_count"`
	RoomCount         int                `db:"room_count" json:"room_count"`
	PlacedCount       int                `db:"placed_count" json:"placed_count"`
	UnplacedSectionID *string            `db:"unplaced_section_id" json:"unplaced_section_id,omitempty"`
	RequestedBy       *string            `db:"requested_by" json:"requested_by,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// TimetableEntry is one placed section of a completed run.
type TimetableEntry struct {
	ID            string    `db:"id" json:"id"`
	RunID         string    `db:"run_id" json:"run_id"`
	Position      int       `db:"position" json:"position"`
	SectionID     string    `db:"section_id" json:"section_id"`
	CourseName    string    `db:"course_name" json:"course_name"`
	CourseCode    string    `db:"course_code" json:"course_code"`
	SectionNumber string    `db:"section_number" json:"section_number"`
	ProfessorID   string    `db:"professor_id" json:"professor_id"`
	ProfessorName string    `db:"professor_name" json:"professor_name"`
	CreditHours   int       `db:"credit_hours" json:"credit_hours"`
	Period        string    `db:"period" json:"period"`
	DayOfWeek     string    `db:"day_of_week" json:"day_of_week"`
	StartHour     int       `db:"start_hour" json:"start_hour"`
	EndHour       int       `db:"end_hour" json:"end_hour"`
	RoomID        string    `db:"room_id" json:"room_id"`
	RoomName      string    `db:"room_name" json:"room_name"`
	RoomCapacity  int       `db:"room_capacity" json:"room_capacity"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TimetableRunFilter narrows run history listings.
type TimetableRunFilter struct {
	Period   string
	Page     int
	PageSize int
}
