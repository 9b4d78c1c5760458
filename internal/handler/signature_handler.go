package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/response"
)

// maxSignatureBodyBytes covers a 2 MiB PNG after base64 plus the signer fields.
const maxSignatureBodyBytes = 3 << 20

type signatureService interface {
	RequestSignature(ctx context.Context, evaluationID, origin string, actor *models.JWTClaims, meta models.LoginRequest) (*models.SignatureRequestResult, error)
	ResendSignatureRequest(ctx context.Context, evaluationID, origin string, actor *models.JWTClaims, meta models.LoginRequest) (*models.SignatureRequestResult, error)
	LookupByToken(ctx context.Context, token string) (*models.PublicEvaluation, error)
	SubmitSignature(ctx context.Context, token string, submission models.SignatureSubmission) (*models.SignatureReceipt, error)
}

// SignatureHandler serves the staff and customer halves of the signing flow.
type SignatureHandler struct {
	service signatureService
}

// NewSignatureHandler builds a signature handler.
func NewSignatureHandler(svc signatureService) *SignatureHandler {
	return &SignatureHandler{service: svc}
}

// Request godoc
// @Summary Email a signing link to the account contact
// @Tags Signatures
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Not in a signable state"
// @Failure 502 {object} response.Envelope "Email dispatch failed"
// @Router /evaluations/{id}/signature-request [post]
func (h *SignatureHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.RequestSignature(c.Request.Context(), c.Param("id"), c.GetHeader("Origin"), claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Resend godoc
// @Summary Resend the signing link with the existing token
// @Tags Signatures
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id}/signature-request/resend [post]
func (h *SignatureHandler) Resend(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.ResendSignatureRequest(c.Request.Context(), c.Param("id"), c.GetHeader("Origin"), claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Lookup godoc
// @Summary Public evaluation view for a signing token
// @Tags Signatures
// @Produce json
// @Param token path string true "Signing token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/signatures/{token} [get]
func (h *SignatureHandler) Lookup(c *gin.Context) {
	view, err := h.service.LookupByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Submit godoc
// @Summary Submit a customer signature
// @Tags Signatures
// @Accept json
// @Produce json
// @Param token path string true "Signing token"
// @Param payload body models.SignatureSubmission true "Signer details"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Already signed"
// @Router /public/signatures/{token} [post]
func (h *SignatureHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSignatureBodyBytes)

	var req models.SignatureSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "signature payload too large"))
			return
		}
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	receipt, err := h.service.SubmitSignature(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}
