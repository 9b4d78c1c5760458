package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

const announcementColumns = `id, title, content, priority, active, published_at, expires_at, created_by, created_at, updated_at`

// AnnouncementRepository provides persistence for announcements and per-user dismissals.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements matching the filter, highest priority and newest first.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	base := "FROM announcements a"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ActiveOnly {
		where = append(where, "a.active = TRUE", "a.published_at <= NOW()", "(a.expires_at IS NULL OR a.expires_at > NOW())")
	}
	if filter.ExcludeDismissedBy != "" {
		where = append(where, fmt.Sprintf("NOT EXISTS (SELECT 1 FROM announcement_dismissals d WHERE d.announcement_id = a.id AND d.user_id = $%d)", len(args)+1))
		args = append(args, filter.ExcludeDismissedBy)
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.title, a.content, a.priority, a.active, a.published_at, a.expires_at, a.created_by, a.created_at, a.updated_at
%s WHERE %s
ORDER BY CASE a.priority WHEN 'HIGH' THEN 3 WHEN 'NORMAL' THEN 2 ELSE 1 END DESC, a.published_at DESC
LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// GetByID returns an announcement by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get announcement: %w", err)
	}
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	if announcement.PublishedAt.IsZero() {
		announcement.PublishedAt = now
	}
	announcement.UpdatedAt = now
	query := `INSERT INTO announcements (` + announcementColumns + `)
VALUES (:id, :title, :content, :priority, :active, :published_at, :expires_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update modifies an existing announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	query := `UPDATE announcements SET title = :title, content = :content, priority = :priority, active = :active,
published_at = :published_at, expires_at = :expires_at, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, announcement)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return expectRows(result, "update announcement")
}

// Delete removes an announcement; dismissals cascade.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return expectRows(result, "delete announcement")
}

// Dismiss records that userID no longer wants to see the announcement. Repeat calls are no-ops.
func (r *AnnouncementRepository) Dismiss(ctx context.Context, announcementID, userID string, at time.Time) error {
	const query = `INSERT INTO announcement_dismissals (announcement_id, user_id, dismissed_at) VALUES ($1, $2, $3)
ON CONFLICT (announcement_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, announcementID, userID, at); err != nil {
		return fmt.Errorf("dismiss announcement: %w", err)
	}
	return nil
}
