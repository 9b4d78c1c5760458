package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

const postColumns = `id, author_id, author_name, content, image_url, created_at, updated_at`

// PostRepository provides persistence for the team feed.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates the repository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// List returns posts newest first.
func (r *PostRepository) List(ctx context.Context, page, pageSize int) ([]models.Post, int, error) {
	page, pageSize = normalisePage(page, pageSize)
	offset := (page - 1) * pageSize
	query := fmt.Sprintf("SELECT %s FROM posts ORDER BY created_at DESC, id ASC LIMIT %d OFFSET %d", postColumns, pageSize, offset)
	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, query); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM posts"); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	return posts, total, nil
}

// GetByID returns a post.
func (r *PostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := r.db.GetContext(ctx, &post, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}

// Create inserts a post.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	const query = `INSERT INTO posts (` + postColumns + `) VALUES (:id, :author_id, :author_name, :content, :image_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// Update edits post content.
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE posts SET content = :content, image_url = :image_url, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, post)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return expectRows(result, "update post")
}

// Delete removes a post.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return expectRows(result, "delete post")
}
