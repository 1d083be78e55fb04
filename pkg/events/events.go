package events

// TypeTimetableGenerated is emitted after a timetable run completes and is retained.
const TypeTimetableGenerated = "timetable.generated"

// TimetableGenerated describes a successfully generated timetable.
type TimetableGenerated struct {
	RunID       string `json:"run_id" mapstructure:"run_id"`
	Period      string `json:"period" mapstructure:"period"`
	Version     int    `json:"version" mapstructure:"version"`
	Entries     int    `json:"entries" mapstructure:"entries"`
	Rooms       int    `json:"rooms" mapstructure:"rooms"`
	RequestedBy string `json:"requested_by,omitempty" mapstructure:"requested_by"`
	GeneratedAt string `json:"generated_at" mapstructure:"generated_at"`
}
