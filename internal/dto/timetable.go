package dto

import "time"

// GenerateTimetableRequest asks for a timetable of every section in a period.
type GenerateTimetableRequest struct {
	Period      string `json:"period" validate:"required,max=32"`
	RequestedBy string `json:"-"`
}

// UnplacedSection identifies the section that made a run infeasible.
type UnplacedSection struct {
	SectionID   string `json:"sectionId"`
	CourseCode  string `json:"courseCode"`
	CreditHours int    `json:"creditHours"`
	ProfessorID string `json:"professorId"`
}

// GenerateTimetableResponse reports the outcome of a generation run. Timetable
// is null when the run was infeasible.
type GenerateTimetableResponse struct {
	RunID     string             `json:"runId"`
	Period    string             `json:"period"`
	Version   int                `json:"version"`
	Feasible  bool               `json:"feasible"`
	State     string             `json:"state"`
	Placed    int                `json:"placed"`
	Total     int                `json:"total"`
	Unplaced  *UnplacedSection   `json:"unplaced,omitempty"`
	Timetable *TimetableSnapshot `json:"timetable"`
}

// TimetableEntryView is one placed section as returned to clients.
type TimetableEntryView struct {
	SectionID     string `json:"sectionId"`
	CourseName    string `json:"courseName"`
	CourseCode    string `json:"courseCode"`
	SectionNumber string `json:"sectionNumber"`
	ProfessorID   string `json:"professorId"`
	ProfessorName string `json:"professorName"`
	CreditHours   int    `json:"creditHours"`
	Period        string `json:"period"`
	Day           string `json:"day"`
	StartHour     int    `json:"startHour"`
	EndHour       int    `json:"endHour"`
	Schedule      string `json:"schedule"`
	RoomID        string `json:"roomId"`
	RoomName      string `json:"roomName"`
	RoomCapacity  int    `json:"roomCapacity"`
}

// TimetableSnapshot is the retained timetable. An empty snapshot has no run id.
type TimetableSnapshot struct {
	RunID       string               `json:"runId,omitempty"`
	Period      string               `json:"period,omitempty"`
	Version     int                  `json:"version,omitempty"`
	GeneratedAt *time.Time           `json:"generatedAt,omitempty"`
	Entries     []TimetableEntryView `json:"entries"`
}

// ExportTimetableQuery selects the export format of the retained timetable.
type ExportTimetableQuery struct {
	Period string `form:"period" json:"period" validate:"omitempty,max=32"`
	Format string `form:"format" json:"format" validate:"omitempty,oneof=csv pdf"`
}

// ExportedTimetable carries a rendered export.
type ExportedTimetable struct {
	Filename    string
	ContentType string
	Payload     []byte
	Cached      bool
}

// StoredExport describes an export saved for later download.
type StoredExport struct {
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TimetableRunQuery filters the run history.
type TimetableRunQuery struct {
	Period   string `form:"period"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}
