package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timetableHeader = "Course name;Code;Section number;Professor name;Credits;Period;Schedule;Day;Room;Capacity\n"

func TestTimetableCSVHeaderOnlyWhenEmpty(t *testing.T) {
	out, err := NewTimetableCSV().Render(nil)
	require.NoError(t, err)
	assert.Equal(t, timetableHeader, string(out))
}

func TestTimetableCSVRendersRows(t *testing.T) {
	rows := []TimetableRow{{
		CourseName:    "Algorithms",
		Code:          "CS201",
		SectionNumber: "1",
		ProfessorName: "Ada Lovelace",
		Credits:       3,
		Period:        "2025-1",
		Schedule:      FormatSchedule(9, 12),
		Day:           "Monday",
		Room:          "A-101",
		Capacity:      40,
	}}

	out, err := NewTimetableCSV().Render(rows)
	require.NoError(t, err)
	assert.Equal(t, timetableHeader+"Algorithms;CS201;1;Ada Lovelace;3;2025-1;9:00-12:00;Monday;A-101;40\n", string(out))
}

func TestFormatScheduleHasNoPadding(t *testing.T) {
	assert.Equal(t, "9:00-11:00", FormatSchedule(9, 11))
	assert.Equal(t, "14:00-18:00", FormatSchedule(14, 18))
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render([]TimetableRow{{CourseName: "Algorithms", Credits: 3, Schedule: "9:00-12:00"}}, "Timetable 2025-1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	empty, err := NewPDFExporter().Render(nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, empty)
}
