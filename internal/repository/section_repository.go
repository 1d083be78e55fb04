package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// SectionRepository reads the course sections offered in an academic period.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// ListForPeriod returns the sections of a period in their registration order.
// Sections without a professor are returned with an empty professor id.
func (r *SectionRepository) ListForPeriod(ctx context.Context, period string) ([]models.CourseSection, error) {
	const query = `SELECT cs.id, c.name AS course_name, c.code AS course_code, cs.section_number,
	COALESCE(cs.professor_id, '') AS professor_id, COALESCE(p.full_name, '') AS professor_name, c.credit_hours, cs.period
FROM course_sections cs
JOIN courses c ON c.id = cs.course_id
LEFT JOIN professors p ON p.id = cs.professor_id
WHERE cs.period = $1
ORDER BY cs.created_at ASC, cs.id ASC`
	var sections []models.CourseSection
	if err := r.db.SelectContext(ctx, &sections, query, period); err != nil {
		return nil, fmt.Errorf("list course sections: %w", err)
	}
	return sections, nil
}
