package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/response"
)

type announcementService interface {
	ListActive(ctx context.Context, userID string, page, pageSize int) ([]models.Announcement, *models.Pagination, error)
	ListAll(ctx context.Context, page, pageSize int) ([]models.Announcement, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, req models.AnnouncementRequest, createdBy string) (*models.Announcement, error)
	Update(ctx context.Context, id string, req models.AnnouncementRequest) (*models.Announcement, error)
	Delete(ctx context.Context, id string) error
	Dismiss(ctx context.Context, id, userID string) error
}

type postService interface {
	List(ctx context.Context, page, pageSize int) ([]models.Post, *models.Pagination, error)
	Create(ctx context.Context, req models.PostRequest, actor *models.JWTClaims) (*models.Post, error)
	Update(ctx context.Context, id string, req models.PostRequest, actor *models.JWTClaims) (*models.Post, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// FeedHandler serves announcements and team posts.
type FeedHandler struct {
	announcements announcementService
	posts         postService
}

// NewFeedHandler builds a feed handler.
func NewFeedHandler(announcements announcementService, posts postService) *FeedHandler {
	return &FeedHandler{announcements: announcements, posts: posts}
}

// ActiveAnnouncements godoc
// @Summary Announcements visible to the caller
// @Description Published, unexpired and not dismissed by the caller
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *FeedHandler) ActiveAnnouncements(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.announcements.ListActive(c.Request.Context(), claims.UserID, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// AllAnnouncements godoc
// @Summary All announcements
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements/all [get]
func (h *FeedHandler) AllAnnouncements(c *gin.Context) {
	page, size := pageParams(c)
	items, pagination, err := h.announcements.ListAll(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetAnnouncement godoc
// @Summary Get announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *FeedHandler) GetAnnouncement(c *gin.Context) {
	item, err := h.announcements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateAnnouncement godoc
// @Summary Create announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param payload body models.AnnouncementRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Router /announcements [post]
func (h *FeedHandler) CreateAnnouncement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	item, err := h.announcements.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateAnnouncement godoc
// @Summary Update announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body models.AnnouncementRequest true "Announcement"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *FeedHandler) UpdateAnnouncement(c *gin.Context) {
	var req models.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	item, err := h.announcements.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteAnnouncement godoc
// @Summary Delete announcement
// @Tags Announcements
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id} [delete]
func (h *FeedHandler) DeleteAnnouncement(c *gin.Context) {
	if err := h.announcements.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DismissAnnouncement godoc
// @Summary Hide an announcement for the caller
// @Tags Announcements
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id}/dismiss [post]
func (h *FeedHandler) DismissAnnouncement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.announcements.Dismiss(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPosts godoc
// @Summary Team feed
// @Tags Posts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /posts [get]
func (h *FeedHandler) ListPosts(c *gin.Context) {
	page, size := pageParams(c)
	items, pagination, err := h.posts.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// CreatePost godoc
// @Summary Create post
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body models.PostRequest true "Post"
// @Success 201 {object} response.Envelope
// @Router /posts [post]
func (h *FeedHandler) CreatePost(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	post, err := h.posts.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// UpdatePost godoc
// @Summary Edit own post
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body models.PostRequest true "Post"
// @Success 200 {object} response.Envelope
// @Router /posts/{id} [put]
func (h *FeedHandler) UpdatePost(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	post, err := h.posts.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// DeletePost godoc
// @Summary Delete post
// @Description Authors may delete their own posts; admins may delete any
// @Tags Posts
// @Param id path string true "Post ID"
// @Success 204
// @Router /posts/{id} [delete]
func (h *FeedHandler) DeletePost(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.posts.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
