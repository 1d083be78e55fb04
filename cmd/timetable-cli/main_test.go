package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInputs(t *testing.T, sections, rooms string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	sectionsPath := filepath.Join(dir, "sections.csv")
	roomsPath := filepath.Join(dir, "rooms.csv")
	require.NoError(t, os.WriteFile(sectionsPath, []byte(sections), 0o644))
	require.NoError(t, os.WriteFile(roomsPath, []byte(rooms), 0o644))
	return sectionsPath, roomsPath
}

const header = "Section id;Course name;Code;Section number;Professor id;Professor name;Credits;Period\n"

func TestRunWritesExport(t *testing.T) {
	sections, rooms := writeInputs(t, header+"s1;Algorithms;CS201;1;p1;Ada;3;2025-1\n", "Room id;Name;Capacity\nr1;A101;40\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-sections", sections, "-rooms", rooms, "-out", "-"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Algorithms;CS201;1;Ada;3;2025-1;9:00-12:00;Monday;A101;40", lines[1])
}

func TestRunInfeasibleExitsTwo(t *testing.T) {
	sections, rooms := writeInputs(t, header+"s1;Thesis;TH900;1;p1;Ada;9;2025-1\n", "Room id;Name;Capacity\nr1;A101;40\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-sections", sections, "-rooms", rooms, "-out", filepath.Join(t.TempDir(), "out.csv")}, &stdout, &stderr)

	assert.Equal(t, exitInfeasible, code)
	assert.Contains(t, stdout.String(), "infeasible: section s1")
}

func TestRunInvalidInputExitsOne(t *testing.T) {
	sections, rooms := writeInputs(t, header+"s1;Algorithms;CS201;1;p1;Ada;3;2025-1\n", "Room id;Name;Capacity\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-sections", sections, "-rooms", rooms}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "invalid input")
}

func TestRunMissingFileExitsOne(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-sections", filepath.Join(t.TempDir(), "none.csv")}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
}
