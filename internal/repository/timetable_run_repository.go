package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// TimetableRunRepository persists generation runs and their entries.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository constructs the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

func (r *TimetableRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a run assigning the next version for its period.
func (r *TimetableRunRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	if run == nil {
		return fmt.Errorf("timetable run payload is nil")
	}
	if run.Period == "" {
		return fmt.Errorf("period is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.TimetableRunCompleted
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_runs WHERE period = $1`
	if err := sqlx.GetContext(ctx, target, &run.Version, nextVersionQuery, run.Period); err != nil {
		return fmt.Errorf("compute next timetable run version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetable_runs (id, period, version, status, section_count, room_count, placed_count, unplaced_section_id, requested_by, created_at)
VALUES (:id, :period, :version, :status, :section_count, :room_count, :placed_count, :unplaced_section_id, :requested_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, run); err != nil {
		return fmt.Errorf("insert timetable run: %w", err)
	}
	return nil
}

// InsertEntries stores the placed sections of a run.
func (r *TimetableRunRepository) InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_entries (id, run_id, position, section_id, course_name, course_code, section_number, professor_id, professor_name, credit_hours, period, day_of_week, start_hour, end_hour, room_id, room_name, room_capacity, created_at)
VALUES (:id, :run_id, :position, :section_id, :course_name, :course_code, :section_number, :professor_id, :professor_name, :credit_hours, :period, :day_of_week, :start_hour, :end_hour, :room_id, :room_name, :room_capacity, :created_at)`

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert timetable entry: %w", err)
		}
	}
	return nil
}

// ListByPeriod returns runs newest first together with the total count.
func (r *TimetableRunRepository) ListByPeriod(ctx context.Context, filter models.TimetableRunFilter) ([]models.TimetableRun, int, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	switch {
	case size <= 0:
		size = 20
	case size > 100:
		size = 100
	}

	const countQuery = `SELECT COUNT(*) FROM timetable_runs WHERE ($1 = '' OR period = $1)`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, filter.Period); err != nil {
		return nil, 0, fmt.Errorf("count timetable runs: %w", err)
	}

	const query = `SELECT id, period, version, status, section_count, room_count, placed_count, unplaced_section_id, requested_by, created_at
FROM timetable_runs WHERE ($1 = '' OR period = $1)
ORDER BY created_at DESC, version DESC LIMIT $2 OFFSET $3`
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, filter.Period, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list timetable runs: %w", err)
	}
	return runs, total, nil
}

// FindByID loads a run by its identifier.
func (r *TimetableRunRepository) FindByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, period, version, status, section_count, room_count, placed_count, unplaced_section_id, requested_by, created_at FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListEntries returns the entries of a run in placement order.
func (r *TimetableRunRepository) ListEntries(ctx context.Context, runID string) ([]models.TimetableEntry, error) {
	const query = `SELECT id, run_id, position, section_id, course_name, course_code, section_number, professor_id, professor_name, credit_hours, period, day_of_week, start_hour, end_hour, room_id, room_name, room_capacity, created_at
FROM timetable_entries WHERE run_id = $1 ORDER BY position ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, runID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}
