package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type postRepository interface {
	List(ctx context.Context, page, pageSize int) ([]models.Post, int, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
}

// PostService manages the team feed.
type PostService struct {
	repo      postRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPostService constructs the service.
func NewPostService(repo postRepository, validate *validator.Validate, logger *zap.Logger) *PostService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{repo: repo, validator: validate, logger: logger}
}

// List returns the feed newest first.
func (s *PostService) List(ctx context.Context, page, pageSize int) ([]models.Post, *models.Pagination, error) {
	pagination := newPagination(page, pageSize, 0)
	posts, total, err := s.repo.List(ctx, pagination.Page, pagination.PageSize)
	if err != nil {
		return nil, nil, internalError(err, "failed to list posts")
	}
	if posts == nil {
		posts = []models.Post{}
	}
	pagination.TotalCount = total
	return posts, pagination, nil
}

// Create publishes a post authored by actor.
func (s *PostService) Create(ctx context.Context, req models.PostRequest, actor *models.JWTClaims) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid post payload")
	}
	post := &models.Post{
		AuthorID:   actor.UserID,
		AuthorName: actor.FullName,
		Content:    strings.TrimSpace(req.Content),
		ImageURL:   req.ImageURL,
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, internalError(err, "failed to create post")
	}
	return post, nil
}

// Update edits a post. Only its author may edit.
func (s *PostService) Update(ctx context.Context, id string, req models.PostRequest, actor *models.JWTClaims) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid post payload")
	}
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "post", "load post")
	}
	if post.AuthorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can edit this post")
	}
	post.Content = strings.TrimSpace(req.Content)
	post.ImageURL = req.ImageURL
	if err := s.repo.Update(ctx, post); err != nil {
		return nil, notFoundOr(err, "post", "update post")
	}
	return post, nil
}

// Delete removes a post. Authors delete their own; admins delete any.
func (s *PostService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "post", "load post")
	}
	if post.AuthorID != actor.UserID && !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author or an admin can delete this post")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "post", "delete post")
	}
	return nil
}
