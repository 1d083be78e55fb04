package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/events"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
)

const (
	exportFormatCSV = "csv"
	exportFormatPDF = "pdf"

	exportCachePrefix = "timetable:export:"
)

type sectionReader interface {
	ListForPeriod(ctx context.Context, period string) ([]models.CourseSection, error)
}

type roomReader interface {
	ListOrdered(ctx context.Context) ([]models.Room, error)
}

type timetableRunRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error
	InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error
	ListByPeriod(ctx context.Context, filter models.TimetableRunFilter) ([]models.TimetableRun, int, error)
	FindByID(ctx context.Context, id string) (*models.TimetableRun, error)
	ListEntries(ctx context.Context, runID string) ([]models.TimetableEntry, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type exportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type timetableCSVRenderer interface {
	Render(rows []export.TimetableRow) ([]byte, error)
}

type timetablePDFRenderer interface {
	Render(rows []export.TimetableRow, title string) ([]byte, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type exportSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

type generationNotifier interface {
	NotifyGenerated(ctx context.Context, evt events.TimetableGenerated) error
}

// TimetableConfig tunes export behaviour.
type TimetableConfig struct {
	APIPrefix      string
	ExportCacheTTL time.Duration
}

// TimetableDeps groups the collaborators of TimetableService. Only Sections and
// Rooms are required.
type TimetableDeps struct {
	Sections sectionReader
	Rooms    roomReader
	Runs     timetableRunRepository
	Tx       txProvider
	Cache    exportCache
	CSV      timetableCSVRenderer
	PDF      timetablePDFRenderer
	Storage  exportStorage
	Signer   exportSigner
	Notifier generationNotifier
	Metrics  *MetricsService
}

// TimetableService runs the generator against the database snapshot of a
// period, retains the last successful timetable and exports it.
type TimetableService struct {
	deps      TimetableDeps
	cfg       TimetableConfig
	validator *validator.Validate
	logger    *zap.Logger

	runMu sync.Mutex
	store *retainedStore
}

// NewTimetableService wires the service.
func NewTimetableService(deps TimetableDeps, cfg TimetableConfig, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.CSV == nil {
		deps.CSV = export.NewTimetableCSV()
	}
	if deps.PDF == nil {
		deps.PDF = export.NewPDFExporter()
	}
	if cfg.ExportCacheTTL <= 0 {
		cfg.ExportCacheTTL = 10 * time.Minute
	}
	return &TimetableService{
		deps:      deps,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		store:     &retainedStore{},
	}
}

// Generate schedules every section of the requested period. An infeasible
// period is reported in the response, not as an error, and leaves the
// retained timetable untouched.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	period := strings.TrimSpace(req.Period)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	resp, outcome, err := s.generate(ctx, period, req.RequestedBy)
	s.deps.Metrics.RecordGeneration(outcome, time.Since(start))
	return resp, err
}

func (s *TimetableService) generate(ctx context.Context, period, requestedBy string) (*dto.GenerateTimetableResponse, string, error) {
	sectionRows, err := s.deps.Sections.ListForPeriod(ctx, period)
	if err != nil {
		return nil, OutcomeError, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course sections")
	}
	roomRows, err := s.deps.Rooms.ListOrdered(ctx)
	if err != nil {
		return nil, OutcomeError, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}

	sections := lo.Map(sectionRows, func(row models.CourseSection, _ int) timetable.Section {
		return timetable.Section{
			SectionID:     row.ID,
			CourseName:    row.CourseName,
			CourseCode:    row.CourseCode,
			SectionNumber: row.SectionNumber,
			ProfessorID:   row.ProfessorID,
			ProfessorName: row.ProfessorName,
			CreditHours:   row.CreditHours,
			Period:        row.Period,
		}
	})
	rooms := lo.Map(roomRows, func(row models.Room, _ int) timetable.Room {
		return timetable.Room{RoomID: row.ID, Name: row.Name, Capacity: row.Capacity}
	})

	result, err := timetable.Generate(sections, rooms)
	if err != nil {
		if errors.Is(err, timetable.ErrInvalidInput) {
			return nil, OutcomeInvalid, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		return nil, OutcomeError, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}

	run := &models.TimetableRun{
		Period:       period,
		SectionCount: len(sections),
		RoomCount:    len(rooms),
		PlacedCount:  result.Placed,
		CreatedAt:    time.Now().UTC(),
	}
	if requestedBy != "" {
		run.RequestedBy = &requestedBy
	}

	if !result.Feasible() {
		run.Status = models.TimetableRunFailed
		run.UnplacedSectionID = &result.Unplaced.SectionID
		if err := s.persistRun(ctx, run, nil); err != nil {
			return nil, OutcomeError, err
		}
		s.logger.Info("timetable infeasible",
			zap.String("period", period),
			zap.String("run_id", run.ID),
			zap.String("unplaced_section", result.Unplaced.SectionID),
			zap.Int("placed", result.Placed),
			zap.Int("sections", len(sections)),
		)
		return &dto.GenerateTimetableResponse{
			RunID:    run.ID,
			Period:   period,
			Version:  run.Version,
			Feasible: false,
			State:    string(result.State),
			Placed:   result.Placed,
			Total:    len(sections),
			Unplaced: &dto.UnplacedSection{
				SectionID:   result.Unplaced.SectionID,
				CourseCode:  result.Unplaced.CourseCode,
				CreditHours: result.Unplaced.CreditHours,
				ProfessorID: result.Unplaced.ProfessorID,
			},
		}, OutcomeFailed, nil
	}

	run.Status = models.TimetableRunCompleted
	if err := s.persistRun(ctx, run, result.Entries); err != nil {
		return nil, OutcomeError, err
	}

	retained := &retainedTimetable{
		RunID:       run.ID,
		Period:      period,
		Version:     run.Version,
		GeneratedAt: run.CreatedAt,
		Entries:     result.Entries,
	}
	s.store.Replace(retained)
	s.deps.Metrics.SetRetainedEntries(len(result.Entries))
	s.afterGenerated(ctx, retained, len(rooms), requestedBy)

	s.logger.Info("timetable generated",
		zap.String("period", period),
		zap.String("run_id", run.ID),
		zap.Int("version", run.Version),
		zap.Int("entries", len(result.Entries)),
	)

	snapshot := retained.snapshot()
	return &dto.GenerateTimetableResponse{
		RunID:     run.ID,
		Period:    period,
		Version:   run.Version,
		Feasible:  true,
		State:     string(result.State),
		Placed:    result.Placed,
		Total:     len(sections),
		Timetable: &snapshot,
	}, OutcomeCompleted, nil
}

// persistRun stores the run and its entries in one transaction. Without a
// run repository the run only receives an id.
func (s *TimetableService) persistRun(ctx context.Context, run *models.TimetableRun, entries []timetable.Entry) (err error) {
	if s.deps.Runs == nil {
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
		return nil
	}
	if s.deps.Tx == nil {
		if err := s.deps.Runs.CreateVersioned(ctx, nil, run); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
		}
		if err := s.deps.Runs.InsertEntries(ctx, nil, toEntryModels(run, entries)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable entries")
		}
		return nil
	}

	tx, err := s.deps.Tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.deps.Runs.CreateVersioned(ctx, tx, run); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
		return err
	}
	if err = s.deps.Runs.InsertEntries(ctx, tx, toEntryModels(run, entries)); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable entries")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable run")
		return err
	}
	return nil
}

func (s *TimetableService) afterGenerated(ctx context.Context, retained *retainedTimetable, rooms int, requestedBy string) {
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(ctx, exportCachePrefix+"*"); err != nil {
			s.logger.Warn("failed to invalidate export cache", zap.Error(err))
		}
	}
	if s.deps.Notifier != nil {
		evt := events.TimetableGenerated{
			RunID:       retained.RunID,
			Period:      retained.Period,
			Version:     retained.Version,
			Entries:     len(retained.Entries),
			Rooms:       rooms,
			RequestedBy: requestedBy,
			GeneratedAt: retained.GeneratedAt.Format(time.RFC3339),
		}
		if err := s.deps.Notifier.NotifyGenerated(ctx, evt); err != nil {
			s.logger.Warn("failed to queue timetable notification", zap.String("run_id", retained.RunID), zap.Error(err))
		}
	}
}

// Latest returns the retained timetable, or an empty snapshot before the
// first successful run.
func (s *TimetableService) Latest(ctx context.Context) (*dto.TimetableSnapshot, error) {
	retained := s.store.Get()
	if retained == nil {
		return &dto.TimetableSnapshot{Entries: []dto.TimetableEntryView{}}, nil
	}
	snapshot := retained.snapshot()
	return &snapshot, nil
}

// Export renders the retained timetable. With nothing retained a CSV export
// holds only the header line.
func (s *TimetableService) Export(ctx context.Context, query dto.ExportTimetableQuery) (*dto.ExportedTimetable, error) {
	query.Format = strings.ToLower(strings.TrimSpace(query.Format))
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	format := query.Format
	if format == "" {
		format = exportFormatCSV
	}

	retained := s.store.Get()
	period := query.Period
	var entries []timetable.Entry
	cacheKey := ""
	if retained != nil {
		if query.Period != "" && query.Period != retained.Period {
			s.logger.Warn("export period differs from retained timetable",
				zap.String("requested", query.Period),
				zap.String("retained", retained.Period),
			)
		}
		period = retained.Period
		entries = retained.Entries
		cacheKey = fmt.Sprintf("%s%s:%s", exportCachePrefix, retained.RunID, format)
	}

	out := &dto.ExportedTimetable{
		Filename:    exportFilename(period, format),
		ContentType: contentTypeFor(format),
	}

	if cacheKey != "" && s.deps.Cache != nil {
		payload, hit, err := s.deps.Cache.Get(ctx, cacheKey)
		if err != nil {
			s.logger.Warn("export cache lookup failed", zap.String("key", cacheKey), zap.Error(err))
		}
		if hit {
			out.Payload = payload
			out.Cached = true
			return out, nil
		}
	}

	rows := ToExportRows(entries)
	var (
		payload []byte
		err     error
	)
	switch format {
	case exportFormatPDF:
		payload, err = s.deps.PDF.Render(rows, exportTitle(period))
	default:
		payload, err = s.deps.CSV.Render(rows)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}
	out.Payload = payload

	if cacheKey != "" && s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, cacheKey, payload, s.cfg.ExportCacheTTL); err != nil {
			s.logger.Warn("export cache store failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return out, nil
}

// ExportToStorage renders the retained timetable, saves it and returns a
// signed download link.
func (s *TimetableService) ExportToStorage(ctx context.Context, query dto.ExportTimetableQuery) (*dto.StoredExport, error) {
	if s.deps.Storage == nil || s.deps.Signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "export storage is not configured")
	}
	exported, err := s.Export(ctx, query)
	if err != nil {
		return nil, err
	}

	format := strings.TrimPrefix(filepath.Ext(exported.Filename), ".")
	name := fmt.Sprintf("timetables/%s_%s", time.Now().UTC().Format("20060102_150405"), exported.Filename)
	relPath, err := s.deps.Storage.Save(name, exported.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable export")
	}

	ref := "empty"
	if retained := s.store.Get(); retained != nil {
		ref = retained.RunID
	}
	token, expiresAt, err := s.deps.Signer.Generate(ref, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &dto.StoredExport{
		Filename:  exported.Filename,
		Format:    format,
		Token:     token,
		URL:       fmt.Sprintf("%s/timetables/download/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenExport validates a download token and opens the stored file. The caller
// closes the file.
func (s *TimetableService) OpenExport(token string) (*os.File, string, error) {
	if s.deps.Storage == nil || s.deps.Signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "export storage is not configured")
	}
	_, relPath, _, err := s.deps.Signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid or expired download link")
	}
	file, err := s.deps.Storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, filepath.Base(relPath), nil
}

// ListRuns returns the generation history, newest first.
func (s *TimetableService) ListRuns(ctx context.Context, query dto.TimetableRunQuery) ([]models.TimetableRun, *models.Pagination, error) {
	if s.deps.Runs == nil {
		return []models.TimetableRun{}, &models.Pagination{Page: 1, PageSize: 0}, nil
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	switch {
	case size <= 0:
		size = 20
	case size > 100:
		size = 100
	}
	runs, total, err := s.deps.Runs.ListByPeriod(ctx, models.TimetableRunFilter{Period: query.Period, Page: page, PageSize: size})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}
	if runs == nil {
		runs = []models.TimetableRun{}
	}
	return runs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RunEntries returns the stored entries of one run.
func (s *TimetableService) RunEntries(ctx context.Context, runID string) ([]models.TimetableEntry, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	if s.deps.Runs == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
	}
	if _, err := s.deps.Runs.FindByID(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	entries, err := s.deps.Runs.ListEntries(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable entries")
	}
	if entries == nil {
		entries = []models.TimetableEntry{}
	}
	return entries, nil
}

// ToExportRows converts placed entries into export lines in placement order.
func ToExportRows(entries []timetable.Entry) []export.TimetableRow {
	return lo.Map(entries, func(e timetable.Entry, _ int) export.TimetableRow {
		return export.TimetableRow{
			CourseName:    e.Section.CourseName,
			Code:          e.Section.CourseCode,
			SectionNumber: e.Section.SectionNumber,
			ProfessorName: e.Section.ProfessorName,
			Credits:       e.Section.CreditHours,
			Period:        e.Section.Period,
			Schedule:      export.FormatSchedule(e.StartHour, e.EndHour),
			Day:           e.Day.String(),
			Room:          e.RoomName,
			Capacity:      e.RoomCapacity,
		}
	})
}

func toEntryModels(run *models.TimetableRun, entries []timetable.Entry) []models.TimetableEntry {
	return lo.Map(entries, func(e timetable.Entry, i int) models.TimetableEntry {
		return models.TimetableEntry{
			RunID:         run.ID,
			Position:      i,
			SectionID:     e.Section.SectionID,
			CourseName:    e.Section.CourseName,
			CourseCode:    e.Section.CourseCode,
			SectionNumber: e.Section.SectionNumber,
			ProfessorID:   e.Section.ProfessorID,
			ProfessorName: e.Section.ProfessorName,
			CreditHours:   e.Section.CreditHours,
			Period:        e.Section.Period,
			DayOfWeek:     e.Day.String(),
			StartHour:     e.StartHour,
			EndHour:       e.EndHour,
			RoomID:        e.RoomID,
			RoomName:      e.RoomName,
			RoomCapacity:  e.RoomCapacity,
		}
	})
}

func exportFilename(period, format string) string {
	return fmt.Sprintf("timetable_%s.%s", sanitizeFilename(period), format)
}

func exportTitle(period string) string {
	if period == "" {
		return "Timetable"
	}
	return "Timetable " + period
}

func contentTypeFor(format string) string {
	if format == exportFormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

type retainedTimetable struct {
	RunID       string
	Period      string
	Version     int
	GeneratedAt time.Time
	Entries     []timetable.Entry
}

func (r *retainedTimetable) snapshot() dto.TimetableSnapshot {
	generatedAt := r.GeneratedAt
	return dto.TimetableSnapshot{
		RunID:       r.RunID,
		Period:      r.Period,
		Version:     r.Version,
		GeneratedAt: &generatedAt,
		Entries: lo.Map(r.Entries, func(e timetable.Entry, _ int) dto.TimetableEntryView {
			return dto.TimetableEntryView{
				SectionID:     e.Section.SectionID,
				CourseName:    e.Section.CourseName,
				CourseCode:    e.Section.CourseCode,
				SectionNumber: e.Section.SectionNumber,
				ProfessorID:   e.Section.ProfessorID,
				ProfessorName: e.Section.ProfessorName,
				CreditHours:   e.Section.CreditHours,
				Period:        e.Section.Period,
				Day:           e.Day.String(),
				StartHour:     e.StartHour,
				EndHour:       e.EndHour,
				Schedule:      export.FormatSchedule(e.StartHour, e.EndHour),
				RoomID:        e.RoomID,
				RoomName:      e.RoomName,
				RoomCapacity:  e.RoomCapacity,
			}
		}),
	}
}

// retainedStore holds the last successful timetable. Values are replaced
// wholesale and never mutated after publication.
type retainedStore struct {
	mu      sync.RWMutex
	current *retainedTimetable
}

func (s *retainedStore) Replace(t *retainedTimetable) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

func (s *retainedStore) Get() *retainedTimetable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
