package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
	Dismiss(ctx context.Context, announcementID, userID string, at time.Time) error
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AnnouncementService{repo: repo, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	svc.validator.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementPriority(strings.ToUpper(fl.Field().String())) {
		case models.AnnouncementPriorityLow, models.AnnouncementPriorityNormal, models.AnnouncementPriorityHigh:
			return true
		default:
			return false
		}
	})
	return svc
}

// ListActive returns live announcements the user has not dismissed.
func (s *AnnouncementService) ListActive(ctx context.Context, userID string, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	return s.list(ctx, models.AnnouncementFilter{ActiveOnly: true, ExcludeDismissedBy: userID, Page: page, PageSize: pageSize})
}

// ListAll returns every announcement for administration.
func (s *AnnouncementService) ListAll(ctx context.Context, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	return s.list(ctx, models.AnnouncementFilter{Page: page, PageSize: pageSize})
}

func (s *AnnouncementService) list(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	pagination := newPagination(filter.Page, filter.PageSize, 0)
	filter.Page, filter.PageSize = pagination.Page, pagination.PageSize
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list announcements")
	}
	if rows == nil {
		rows = []models.Announcement{}
	}
	pagination.TotalCount = total
	return rows, pagination, nil
}

// Get returns an announcement by id.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	ann, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "announcement", "get announcement")
	}
	return ann, nil
}

// Create registers a new announcement.
func (s *AnnouncementService) Create(ctx context.Context, req models.AnnouncementRequest, createdBy string) (*models.Announcement, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	announcement := &models.Announcement{CreatedBy: createdBy, Active: true}
	s.apply(announcement, req)
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, internalError(err, "failed to create announcement")
	}
	return announcement, nil
}

// Update modifies an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req models.AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "announcement", "load announcement")
	}
	s.apply(existing, req)
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, notFoundOr(err, "announcement", "update announcement")
	}
	return existing, nil
}

// Delete removes an announcement by id.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "announcement", "delete announcement")
	}
	return nil
}

// Dismiss hides an announcement for one user. Dismissing twice is not an error.
func (s *AnnouncementService) Dismiss(ctx context.Context, id, userID string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return notFoundOr(err, "announcement", "load announcement")
	}
	if err := s.repo.Dismiss(ctx, id, userID, s.now()); err != nil {
		return internalError(err, "failed to dismiss announcement")
	}
	return nil
}

func (s *AnnouncementService) validate(req models.AnnouncementRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid payload")
	}
	if req.ExpiresAt != nil {
		published := s.now()
		if req.PublishedAt != nil {
			published = *req.PublishedAt
		}
		if !req.ExpiresAt.After(published) {
			return appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
		}
	}
	return nil
}

func (s *AnnouncementService) apply(a *models.Announcement, req models.AnnouncementRequest) {
	a.Title = strings.TrimSpace(req.Title)
	a.Content = req.Content
	a.Priority = models.AnnouncementPriority(strings.ToUpper(string(req.Priority)))
	if a.Priority == "" {
		a.Priority = models.AnnouncementPriorityNormal
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if req.PublishedAt != nil {
		a.PublishedAt = req.PublishedAt.UTC()
	} else if a.PublishedAt.IsZero() {
		a.PublishedAt = s.now()
	}
	a.ExpiresAt = req.ExpiresAt
}
