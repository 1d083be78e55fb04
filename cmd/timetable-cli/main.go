package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/csvio"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
)

const (
	exitOK         = 0
	exitError      = 1
	exitInfeasible = 2
)

type options struct {
	sectionsPath string
	roomsPath    string
	period       string
	outPath      string
	verbose      bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitError
	}

	logger := zap.NewNop()
	if opts.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	defer logger.Sync() //nolint:errcheck

	sections, err := csvio.LoadSections(opts.sectionsPath, opts.period)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	rooms, err := csvio.LoadRooms(opts.roomsPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	logger.Info("inputs loaded", zap.Int("sections", len(sections)), zap.Int("rooms", len(rooms)), zap.String("period", opts.period))

	result, err := timetable.Generate(sections, rooms)
	if err != nil {
		if errors.Is(err, timetable.ErrInvalidInput) {
			fmt.Fprintf(stderr, "invalid input: %v\n", err)
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return exitError
	}

	if !result.Feasible() {
		u := result.Unplaced
		fmt.Fprintf(stdout, "infeasible: section %s (%s, %d credits, professor %s) could not be placed after %d of %d sections\n",
			u.SectionID, u.CourseCode, u.CreditHours, u.ProfessorID, result.Placed, len(sections))
		return exitInfeasible
	}

	payload, err := export.NewTimetableCSV().Render(service.ToExportRows(result.Entries))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	if opts.outPath == "" || opts.outPath == "-" {
		if _, err := stdout.Write(payload); err != nil {
			return exitError
		}
		return exitOK
	}
	if err := os.WriteFile(opts.outPath, payload, 0o644); err != nil {
		fmt.Fprintf(stderr, "error: write %s: %v\n", opts.outPath, err)
		return exitError
	}
	fmt.Fprintf(stdout, "scheduled %d sections into %d rooms, written to %s\n", len(result.Entries), len(rooms), opts.outPath)
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("timetable-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.sectionsPath, "sections", "sections.csv", "semicolon separated sections file")
	fs.StringVar(&opts.roomsPath, "rooms", "rooms.csv", "semicolon separated rooms file")
	fs.StringVar(&opts.period, "period", "", "only schedule sections of this period")
	fs.StringVar(&opts.outPath, "out", "timetable.csv", "export path, - for stdout")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}
