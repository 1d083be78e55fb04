package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/events"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

type sectionReaderStub struct {
	sections []models.CourseSection
	err      error
}

func (s *sectionReaderStub) ListForPeriod(_ context.Context, period string) ([]models.CourseSection, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.CourseSection
	for _, sec := range s.sections {
		if sec.Period == period {
			out = append(out, sec)
		}
	}
	return out, nil
}

type roomReaderStub struct {
	rooms []models.Room
	err   error
}

func (r *roomReaderStub) ListOrdered(context.Context) ([]models.Room, error) {
	return r.rooms, r.err
}

type runRepoStub struct {
	mu        sync.Mutex
	runs      []models.TimetableRun
	entries   map[string][]models.TimetableEntry
	createErr error
	insertErr error
	execs     []sqlx.ExtContext
}

func newRunRepoStub() *runRepoStub {
	return &runRepoStub{entries: map[string][]models.TimetableEntry{}}
}

func (r *runRepoStub) CreateVersioned(_ context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, exec)
	if r.createErr != nil {
		return r.createErr
	}
	version := 1
	for _, existing := range r.runs {
		if existing.Period == run.Period {
			version++
		}
	}
	run.ID = fmt.Sprintf("run-%d", len(r.runs)+1)
	run.Version = version
	r.runs = append(r.runs, *run)
	return nil
}

func (r *runRepoStub) InsertEntries(_ context.Context, _ sqlx.ExtContext, entries []models.TimetableEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, entry := range entries {
		r.entries[entry.RunID] = append(r.entries[entry.RunID], entry)
	}
	return nil
}

func (r *runRepoStub) ListByPeriod(_ context.Context, filter models.TimetableRunFilter) ([]models.TimetableRun, int, error) {
	var out []models.TimetableRun
	for _, run := range r.runs {
		if filter.Period == "" || run.Period == filter.Period {
			out = append(out, run)
		}
	}
	return out, len(out), nil
}

func (r *runRepoStub) FindByID(_ context.Context, id string) (*models.TimetableRun, error) {
	for _, run := range r.runs {
		if run.ID == id {
			found := run
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *runRepoStub) ListEntries(_ context.Context, runID string) ([]models.TimetableEntry, error) {
	return r.entries[runID], nil
}

type runTxProvider struct {
	db *sqlx.DB
}

func (p *runTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func newRunTxMock(t *testing.T) (*runTxProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &runTxProvider{db: sqlx.NewDb(db, "sqlmock")}, mock
}

type exportCacheStub struct {
	items       map[string][]byte
	invalidated []string
}

func newExportCacheStub() *exportCacheStub {
	return &exportCacheStub{items: map[string][]byte{}}
}

func (c *exportCacheStub) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok := c.items[key]
	return payload, ok, nil
}

func (c *exportCacheStub) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.items[key] = value
	return nil
}

func (c *exportCacheStub) Invalidate(_ context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	c.items = map[string][]byte{}
	return nil
}

type notifierStub struct {
	events []events.TimetableGenerated
	err    error
}

func (n *notifierStub) NotifyGenerated(_ context.Context, evt events.TimetableGenerated) error {
	n.events = append(n.events, evt)
	return n.err
}

func courseSection(id, professor string, credits int, period string) models.CourseSection {
	return models.CourseSection{
		ID:            id,
		CourseName:    "Course " + id,
		CourseCode:    strings.ToUpper(id),
		SectionNumber: "1",
		ProfessorID:   professor,
		ProfessorName: "Prof " + professor,
		CreditHours:   credits,
		Period:        period,
	}
}

type timetableFixture struct {
	svc      *TimetableService
	sections *sectionReaderStub
	rooms    *roomReaderStub
	runs     *runRepoStub
	cache    *exportCacheStub
	notifier *notifierStub
}

func newTimetableFixture(t *testing.T, mutate func(*TimetableDeps)) *timetableFixture {
	t.Helper()
	f := &timetableFixture{
		sections: &sectionReaderStub{sections: []models.CourseSection{
			courseSection("alg", "p1", 3, "2025-1"),
			courseSection("db", "p2", 2, "2025-1"),
			courseSection("net", "p1", 2, "2025-1"),
			courseSection("huge", "p3", 9, "2025-2"),
		}},
		rooms:    &roomReaderStub{rooms: []models.Room{{ID: "r1", Name: "A101", Capacity: 40}}},
		cache:    newExportCacheStub(),
		notifier: &notifierStub{},
	}
	deps := TimetableDeps{
		Sections: f.sections,
		Rooms:    f.rooms,
		Cache:    f.cache,
		Notifier: f.notifier,
		Metrics:  NewMetricsService(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	if stub, ok := deps.Runs.(*runRepoStub); ok {
		f.runs = stub
	}
	f.svc = NewTimetableService(deps, TimetableConfig{APIPrefix: "/api/v1"}, nil, nil)
	return f
}

func TestTimetableServiceGenerateFeasible(t *testing.T) {
	f := newTimetableFixture(t, nil)

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1", RequestedBy: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.Feasible)
	assert.Equal(t, "COMPLETED", resp.State)
	assert.Equal(t, 3, resp.Placed)
	assert.Equal(t, 3, resp.Total)
	assert.Nil(t, resp.Unplaced)
	require.NotNil(t, resp.Timetable)
	require.Len(t, resp.Timetable.Entries, 3)
	assert.NotEmpty(t, resp.RunID)

	first := resp.Timetable.Entries[0]
	assert.Equal(t, "alg", first.SectionID)
	assert.Equal(t, "Monday", first.Day)
	assert.Equal(t, "9:00-12:00", first.Schedule)
	assert.Equal(t, "A101", first.RoomName)

	// One room: db waits for the afternoon, net queues behind it.
	db, net := resp.Timetable.Entries[1], resp.Timetable.Entries[2]
	assert.Equal(t, "db", db.SectionID)
	assert.Equal(t, 14, db.StartHour)
	assert.Equal(t, "net", net.SectionID)
	assert.Equal(t, 16, net.StartHour)
	assert.Equal(t, 18, net.EndHour)

	latest, err := f.svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, latest.RunID)
	assert.Len(t, latest.Entries, 3)

	assert.Equal(t, []string{"timetable:export:*"}, f.cache.invalidated)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "2025-1", f.notifier.events[0].Period)
	assert.Equal(t, 3, f.notifier.events[0].Entries)
	assert.Equal(t, "u1", f.notifier.events[0].RequestedBy)
}

func TestTimetableServiceInfeasibleKeepsRetainedTimetable(t *testing.T) {
	f := newTimetableFixture(t, nil)
	ctx := context.Background()

	ok, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)
	require.True(t, ok.Feasible)

	resp, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-2"})
	require.NoError(t, err)
	assert.False(t, resp.Feasible)
	assert.Equal(t, "FAILED", resp.State)
	assert.Nil(t, resp.Timetable)
	require.NotNil(t, resp.Unplaced)
	assert.Equal(t, "huge", resp.Unplaced.SectionID)
	assert.Equal(t, 9, resp.Unplaced.CreditHours)

	latest, err := f.svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, ok.RunID, latest.RunID)
	assert.Equal(t, "2025-1", latest.Period)
	assert.Len(t, f.notifier.events, 1)
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	f := newTimetableFixture(t, nil)

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGenerateRejectsMissingRooms(t *testing.T) {
	f := newTimetableFixture(t, nil)
	f.rooms.rooms = nil

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "no rooms")
}

func TestTimetableServiceGenerateRejectsSectionWithoutProfessor(t *testing.T) {
	f := newTimetableFixture(t, nil)
	f.sections.sections = append(f.sections.sections, courseSection("orphan", "", 2, "2025-1"))

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.svc.store.Get())
}

func TestTimetableServiceGenerateLoadFailure(t *testing.T) {
	f := newTimetableFixture(t, nil)
	f.sections.err = errors.New("connection refused")

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTimetableServicePersistsRunInTransaction(t *testing.T) {
	tx, mock := newRunTxMock(t)
	runs := newRunRepoStub()
	f := newTimetableFixture(t, func(d *TimetableDeps) {
		d.Runs = runs
		d.Tx = tx
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 1, resp.Version)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, models.TimetableRunCompleted, runs.runs[0].Status)
	entries := runs.entries["run-1"]
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, i, entry.Position)
		assert.Equal(t, "run-1", entry.RunID)
	}
	require.Len(t, runs.execs, 1)
	assert.NotNil(t, runs.execs[0])
}

func TestTimetableServiceRollbackLeavesRetainedTimetable(t *testing.T) {
	tx, mock := newRunTxMock(t)
	runs := newRunRepoStub()
	f := newTimetableFixture(t, func(d *TimetableDeps) {
		d.Runs = runs
		d.Tx = tx
	})
	runs.insertErr = errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())

	latest, err := f.svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest.RunID)
	assert.Empty(t, latest.Entries)
	assert.Empty(t, f.notifier.events)
}

func TestTimetableServiceRecordsFailedRun(t *testing.T) {
	tx, mock := newRunTxMock(t)
	runs := newRunRepoStub()
	f := newTimetableFixture(t, func(d *TimetableDeps) {
		d.Runs = runs
		d.Tx = tx
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-2"})
	require.NoError(t, err)
	assert.False(t, resp.Feasible)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, models.TimetableRunFailed, runs.runs[0].Status)
	require.NotNil(t, runs.runs[0].UnplacedSectionID)
	assert.Equal(t, "huge", *runs.runs[0].UnplacedSectionID)
	assert.Empty(t, runs.entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceExportEmptyIsHeaderOnly(t *testing.T) {
	f := newTimetableFixture(t, nil)

	out, err := f.svc.Export(context.Background(), dto.ExportTimetableQuery{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "Course name;Code;Section number;Professor name;Credits;Period;Schedule;Day;Room;Capacity\n", string(out.Payload))
	assert.Equal(t, "text/csv; charset=utf-8", out.ContentType)
	assert.False(t, out.Cached)
	assert.Empty(t, f.cache.items)
}

func TestTimetableServiceExportUsesCache(t *testing.T) {
	f := newTimetableFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)

	first, err := f.svc.Export(ctx, dto.ExportTimetableQuery{})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "timetable_2025-1.csv", first.Filename)
	lines := strings.Split(strings.TrimSpace(string(first.Payload)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Course alg;ALG;1;Prof p1;3;2025-1;9:00-12:00;Monday;A101;40", lines[1])

	key := "timetable:export:" + resp.RunID + ":csv"
	assert.Contains(t, f.cache.items, key)

	second, err := f.svc.Export(ctx, dto.ExportTimetableQuery{Period: "2024-9"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload, second.Payload)
}

func TestTimetableServiceExportPDF(t *testing.T) {
	f := newTimetableFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)

	out, err := f.svc.Export(ctx, dto.ExportTimetableQuery{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.True(t, strings.HasPrefix(string(out.Payload), "%PDF"))
}

func TestTimetableServiceExportFormatIsCaseInsensitive(t *testing.T) {
	f := newTimetableFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)

	out, err := f.svc.Export(ctx, dto.ExportTimetableQuery{Format: "PDF"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.Equal(t, "timetable_2025-1.pdf", out.Filename)

	out, err = f.svc.Export(ctx, dto.ExportTimetableQuery{Format: "Csv"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", out.ContentType)
}

func TestTimetableServiceExportRejectsUnknownFormat(t *testing.T) {
	f := newTimetableFixture(t, nil)

	_, err := f.svc.Export(context.Background(), dto.ExportTimetableQuery{Format: "xlsx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceExportToStorageRoundTrip(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	f := newTimetableFixture(t, func(d *TimetableDeps) {
		d.Storage = store
		d.Signer = signer
	})
	ctx := context.Background()
	_, err = f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)

	stored, err := f.svc.ExportToStorage(ctx, dto.ExportTimetableQuery{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", stored.Format)
	assert.Equal(t, "/api/v1/timetables/download/"+stored.Token, stored.URL)
	assert.True(t, stored.ExpiresAt.After(time.Now()))

	file, name, err := f.svc.OpenExport(stored.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(name, "timetable_2025-1.csv"))
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "Course name;Code"))

	_, _, err = f.svc.OpenExport("bogus")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceExportToStorageNotConfigured(t *testing.T) {
	f := newTimetableFixture(t, nil)

	_, err := f.svc.ExportToStorage(context.Background(), dto.ExportTimetableQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceRunHistory(t *testing.T) {
	runs := newRunRepoStub()
	f := newTimetableFixture(t, func(d *TimetableDeps) { d.Runs = runs })
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	list, pagination, err := f.svc.ListRuns(ctx, dto.TimetableRunQuery{Period: "2025-1", PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 100, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)

	entries, err := f.svc.RunEntries(ctx, second.RunID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = f.svc.RunEntries(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceNotifierFailureDoesNotFailRun(t *testing.T) {
	f := newTimetableFixture(t, nil)
	f.notifier.err = errors.New("queue full")

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{Period: "2025-1"})
	require.NoError(t, err)
	assert.True(t, resp.Feasible)
}
