// Package csvio reads semicolon separated section and room files for the
// offline timetable tool.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"github.com/noah-isme/campus-timetable-api/internal/timetable"
)

// Delimiter separates fields in input files.
const Delimiter = ';'

// SectionRecord is one line of the sections file.
type SectionRecord struct {
	SectionID     string `csv:"Section id"`
	CourseName    string `csv:"Course name"`
	CourseCode    string `csv:"Code"`
	SectionNumber string `csv:"Section number"`
	ProfessorID   string `csv:"Professor id"`
	ProfessorName string `csv:"Professor name"`
	CreditHours   int    `csv:"Credits"`
	Period        string `csv:"Period"`
}

// RoomRecord is one line of the rooms file.
type RoomRecord struct {
	RoomID   string `csv:"Room id"`
	Name     string `csv:"Name"`
	Capacity int    `csv:"Capacity"`
}

// ReadSections parses sections in file order. When period is not empty only
// sections of that period are kept.
func ReadSections(in io.Reader, period string) ([]timetable.Section, error) {
	records := []*SectionRecord{}
	if err := gocsv.UnmarshalCSV(newReader(in), &records); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	period = strings.TrimSpace(period)
	kept := lo.Filter(records, func(r *SectionRecord, _ int) bool {
		return period == "" || strings.TrimSpace(r.Period) == period
	})
	return lo.Map(kept, func(r *SectionRecord, _ int) timetable.Section {
		return timetable.Section{
			SectionID:     strings.TrimSpace(r.SectionID),
			CourseName:    strings.TrimSpace(r.CourseName),
			CourseCode:    strings.TrimSpace(r.CourseCode),
			SectionNumber: strings.TrimSpace(r.SectionNumber),
			ProfessorID:   strings.TrimSpace(r.ProfessorID),
			ProfessorName: strings.TrimSpace(r.ProfessorName),
			CreditHours:   r.CreditHours,
			Period:        strings.TrimSpace(r.Period),
		}
	}), nil
}

// ReadRooms parses rooms in file order.
func ReadRooms(in io.Reader) ([]timetable.Room, error) {
	records := []*RoomRecord{}
	if err := gocsv.UnmarshalCSV(newReader(in), &records); err != nil {
		return nil, fmt.Errorf("parse rooms: %w", err)
	}
	return lo.Map(records, func(r *RoomRecord, _ int) timetable.Room {
		return timetable.Room{
			RoomID:   strings.TrimSpace(r.RoomID),
			Name:     strings.TrimSpace(r.Name),
			Capacity: r.Capacity,
		}
	}), nil
}

// LoadSections opens and parses a sections file.
func LoadSections(path, period string) ([]timetable.Section, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sections file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	return ReadSections(file, period)
}

// LoadRooms opens and parses a rooms file.
func LoadRooms(path string) ([]timetable.Room, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rooms file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	return ReadRooms(file)
}

func newReader(in io.Reader) gocsv.CSVReader {
	r := csv.NewReader(in)
	r.Comma = Delimiter
	r.TrimLeadingSpace = true
	return r
}
