package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"
)

// TimetableDelimiter separates fields in timetable exports.
const TimetableDelimiter = ';'

// TimetableRow is one exported timetable line. Column order follows field order.
type TimetableRow struct {
	CourseName    string `csv:"Course name"`
	Code          string `csv:"Code"`
	SectionNumber string `csv:"Section number"`
	ProfessorName string `csv:"Professor name"`
	Credits       int    `csv:"Credits"`
	Period        string `csv:"Period"`
	Schedule      string `csv:"Schedule"`
	Day           string `csv:"Day"`
	Room          string `csv:"Room"`
	Capacity      int    `csv:"Capacity"`
}

// FormatSchedule renders an hour range as "9:00-12:00".
func FormatSchedule(startHour, endHour int) string {
	return fmt.Sprintf("%d:00-%d:00", startHour, endHour)
}

// TimetableCSV renders timetable rows as semicolon separated CSV.
type TimetableCSV struct {
	comma rune
}

// NewTimetableCSV builds the exporter with the default delimiter.
func NewTimetableCSV() *TimetableCSV {
	return &TimetableCSV{comma: TimetableDelimiter}
}

// Render writes the header followed by one line per row. An empty input
// still produces the header line.
func (e *TimetableCSV) Render(rows []TimetableRow) ([]byte, error) {
	if rows == nil {
		rows = []TimetableRow{}
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma
	if err := gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(writer)); err != nil {
		return nil, fmt.Errorf("write timetable csv: %w", err)
	}
	return buf.Bytes(), nil
}

// TimetableHeaders lists the column labels in export order.
func TimetableHeaders() []string {
	return []string{"Course name", "Code", "Section number", "Professor name", "Credits", "Period", "Schedule", "Day", "Room", "Capacity"}
}
