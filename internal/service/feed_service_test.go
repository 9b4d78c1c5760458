package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type announcementRepoStub struct {
	items      map[string]*models.Announcement
	dismissals map[string]map[string]time.Time
	lastFilter models.AnnouncementFilter
}

func newAnnouncementRepoStub() *announcementRepoStub {
	return &announcementRepoStub{items: map[string]*models.Announcement{}, dismissals: map[string]map[string]time.Time{}}
}

func (s *announcementRepoStub) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	s.lastFilter = filter
	var out []models.Announcement
	for _, a := range s.items {
		if filter.ExcludeDismissedBy != "" {
			if _, dismissed := s.dismissals[a.ID][filter.ExcludeDismissedBy]; dismissed {
				continue
			}
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *announcementRepoStub) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	a, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (s *announcementRepoStub) Create(ctx context.Context, a *models.Announcement) error {
	a.ID = uuid.NewString()
	clone := *a
	s.items[a.ID] = &clone
	return nil
}

func (s *announcementRepoStub) Update(ctx context.Context, a *models.Announcement) error {
	clone := *a
	s.items[a.ID] = &clone
	return nil
}

func (s *announcementRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *announcementRepoStub) Dismiss(ctx context.Context, announcementID, userID string, at time.Time) error {
	if s.dismissals[announcementID] == nil {
		s.dismissals[announcementID] = map[string]time.Time{}
	}
	if _, ok := s.dismissals[announcementID][userID]; !ok {
		s.dismissals[announcementID][userID] = at
	}
	return nil
}

func TestAnnouncementCreateDefaults(t *testing.T) {
	svc := NewAnnouncementService(newAnnouncementRepoStub(), nil, zap.NewNop())

	ann, err := svc.Create(context.Background(), models.AnnouncementRequest{Title: " Q3 targets ", Content: "Read me", Priority: "high"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "Q3 targets", ann.Title)
	assert.Equal(t, models.AnnouncementPriorityHigh, ann.Priority)
	assert.True(t, ann.Active)
	assert.False(t, ann.PublishedAt.IsZero())
	assert.Equal(t, "admin-1", ann.CreatedBy)

	_, err = svc.Create(context.Background(), models.AnnouncementRequest{Title: "x", Content: "y", Priority: "URGENT"}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	past := time.Now().Add(-time.Hour)
	_, err = svc.Create(context.Background(), models.AnnouncementRequest{Title: "x", Content: "y", ExpiresAt: &past}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAnnouncementDismissHidesForCallerOnly(t *testing.T) {
	repo := newAnnouncementRepoStub()
	svc := NewAnnouncementService(repo, nil, zap.NewNop())
	ann, err := svc.Create(context.Background(), models.AnnouncementRequest{Title: "Launch", Content: "New pump"}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, svc.Dismiss(context.Background(), ann.ID, "sales-1"))
	require.NoError(t, svc.Dismiss(context.Background(), ann.ID, "sales-1"))

	mine, _, err := svc.ListActive(context.Background(), "sales-1", 1, 20)
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.True(t, repo.lastFilter.ActiveOnly)

	theirs, pagination, err := svc.ListActive(context.Background(), "sales-2", 0, 0)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
	assert.Equal(t, 20, pagination.PageSize)

	assert.ErrorIs(t, svc.Dismiss(context.Background(), "missing", "sales-1"), appErrors.ErrNotFound)
}

func TestAnnouncementUpdateKeepsActiveFlag(t *testing.T) {
	svc := NewAnnouncementService(newAnnouncementRepoStub(), nil, zap.NewNop())
	inactive := false
	ann, err := svc.Create(context.Background(), models.AnnouncementRequest{Title: "Draft", Content: "c", Active: &inactive}, "admin-1")
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), ann.ID, models.AnnouncementRequest{Title: "Draft 2", Content: "c"})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, ann.PublishedAt, updated.PublishedAt)

	_, err = svc.Update(context.Background(), "missing", models.AnnouncementRequest{Title: "x", Content: "y"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

type postRepoStub struct {
	posts map[string]*models.Post
}

func (s *postRepoStub) List(ctx context.Context, page, pageSize int) ([]models.Post, int, error) {
	var out []models.Post
	for _, p := range s.posts {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *postRepoStub) GetByID(ctx context.Context, id string) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (s *postRepoStub) Create(ctx context.Context, p *models.Post) error {
	p.ID = uuid.NewString()
	clone := *p
	s.posts[p.ID] = &clone
	return nil
}

func (s *postRepoStub) Update(ctx context.Context, p *models.Post) error {
	clone := *p
	s.posts[p.ID] = &clone
	return nil
}

func (s *postRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.posts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.posts, id)
	return nil
}

func TestPostOwnership(t *testing.T) {
	svc := NewPostService(&postRepoStub{posts: map[string]*models.Post{}}, nil, zap.NewNop())
	other := &models.JWTClaims{UserID: "sales-2", Role: models.RoleSales}

	post, err := svc.Create(context.Background(), models.PostRequest{Content: " Closed the General Hospital deal "}, salesActor)
	require.NoError(t, err)
	assert.Equal(t, "Dana Reyes", post.AuthorName)
	assert.Equal(t, "Closed the General Hospital deal", post.Content)

	_, err = svc.Update(context.Background(), post.ID, models.PostRequest{Content: "hijack"}, other)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.Update(context.Background(), post.ID, models.PostRequest{Content: "moderated"}, adminActor)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	updated, err := svc.Update(context.Background(), post.ID, models.PostRequest{Content: "edited"}, salesActor)
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)

	assert.ErrorIs(t, svc.Delete(context.Background(), post.ID, other), appErrors.ErrForbidden)
	require.NoError(t, svc.Delete(context.Background(), post.ID, adminActor))
	assert.ErrorIs(t, svc.Delete(context.Background(), post.ID, salesActor), appErrors.ErrNotFound)
}

func TestPostValidation(t *testing.T) {
	svc := NewPostService(&postRepoStub{posts: map[string]*models.Post{}}, nil, zap.NewNop())
	bad := "not a url"

	_, err := svc.Create(context.Background(), models.PostRequest{Content: ""}, salesActor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.Create(context.Background(), models.PostRequest{Content: "hi", ImageURL: &bad}, salesActor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
