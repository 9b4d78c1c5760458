package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/mailer"
)

const (
	signatureTokenBytes = 32
	pngDataURLPrefix    = "data:image/png;base64,"
	// maxSignatureBytes bounds the decoded PNG size.
	maxSignatureBytes = 2 << 20
	// Signature pads render well under these dimensions.
	maxSignatureWidth  = 4000
	maxSignatureHeight = 2000
)

type signatureEvaluationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Evaluation, error)
	GetSentByToken(ctx context.Context, token string) (*models.Evaluation, error)
	MarkSignatureSent(ctx context.Context, id, token string, sentAt time.Time) error
	TouchSignatureRequest(ctx context.Context, id string, sentAt time.Time) error
	CompleteSignature(ctx context.Context, sig models.CompletedSignature) (*models.Evaluation, error)
}

type signatureAccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type signatureNotifier interface {
	SignatureCompleted(ctx context.Context, evaluation *models.Evaluation) error
}

// SignatureConfig configures outbound signature requests.
type SignatureConfig struct {
	// Origin is the public base URL of the signing page, without trailing slash.
	Origin   string
	FromName string
	// AllowedOrigins lists request origins that may replace Origin in signing links.
	AllowedOrigins []string
}

// SignatureService drives the not_sent -> sent -> signed workflow.
type SignatureService struct {
	evaluations signatureEvaluationRepository
	accounts    signatureAccountRepository
	products    productNameResolver
	mail        mailer.Sender
	notifier    signatureNotifier
	audit       auditLogWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	config      SignatureConfig
	origins     map[string]struct{}

	newToken func() (string, error)
	now      func() time.Time
}

// NewSignatureService constructs the workflow. notifier, audit and metrics may be nil.
func NewSignatureService(
	evaluations signatureEvaluationRepository,
	accounts signatureAccountRepository,
	products productNameResolver,
	mail mailer.Sender,
	notifier signatureNotifier,
	audit auditLogWriter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config SignatureConfig,
) *SignatureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.Origin = strings.TrimRight(config.Origin, "/")
	allowed := make(map[string]struct{}, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || o == "*" {
			continue
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}
	return &SignatureService{
		evaluations: evaluations,
		accounts:    accounts,
		products:    products,
		mail:        mail,
		notifier:    notifier,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		config:      config,
		origins:     allowed,
		newToken:    GenerateSignatureToken,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GenerateSignatureToken returns 256 bits from the system CSPRNG, hex encoded.
func GenerateSignatureToken() (string, error) {
	buf := make([]byte, signatureTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SigningURL builds the customer facing link for token. origin is used only
// when it is one of the configured allowed origins.
func (s *SignatureService) SigningURL(origin, token string) string {
	base := s.config.Origin
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if _, ok := s.origins[strings.ToLower(origin)]; ok && origin != "" {
		base = origin
	}
	return fmt.Sprintf("%s/sign?token=%s", base, token)
}

// RequestSignature emails a signing link to the account contact and moves the
// evaluation to sent. The email goes out first; state is only persisted after
// a successful dispatch.
func (s *SignatureService) RequestSignature(ctx context.Context, evaluationID, origin string, actor *models.JWTClaims, meta models.LoginRequest) (*models.SignatureRequestResult, error) {
	evaluation, account, err := s.loadForRequest(ctx, evaluationID, actor)
	if err != nil {
		return nil, err
	}
	if evaluation.SignatureStatus != models.SignatureStatusNotSent {
		return nil, appErrors.Clone(appErrors.ErrSignatureState, fmt.Sprintf("signature already %s", evaluation.SignatureStatus))
	}

	token, err := s.newToken()
	if err != nil {
		return nil, internalError(err, "failed to generate signing token")
	}
	link := s.SigningURL(origin, token)

	if err := s.dispatch(ctx, evaluation, account, link); err != nil {
		return nil, err
	}

	sentAt := s.now()
	if err := s.evaluations.MarkSignatureSent(ctx, evaluation.ID, token, sentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSignatureState, "signature request was already sent")
		}
		return nil, internalError(err, "failed to record signature request")
	}
	s.metrics.RecordSignatureTransition(SignatureTransitionSent)
	s.recordAudit(ctx, actor, meta, models.AuditActionSignatureRequest, evaluation.ID, account.ContactEmail)

	return &models.SignatureRequestResult{
		EvaluationID: evaluation.ID,
		Status:       models.SignatureStatusSent,
		SentTo:       account.ContactEmail,
		SentAt:       sentAt,
		SigningURL:   link,
	}, nil
}

// ResendSignatureRequest re-sends the existing link for an evaluation awaiting signature.
func (s *SignatureService) ResendSignatureRequest(ctx context.Context, evaluationID, origin string, actor *models.JWTClaims, meta models.LoginRequest) (*models.SignatureRequestResult, error) {
	evaluation, account, err := s.loadForRequest(ctx, evaluationID, actor)
	if err != nil {
		return nil, err
	}
	if evaluation.SignatureStatus != models.SignatureStatusSent || evaluation.SignatureToken == nil {
		return nil, appErrors.Clone(appErrors.ErrSignatureState, "evaluation is not awaiting a signature")
	}
	link := s.SigningURL(origin, *evaluation.SignatureToken)

	if err := s.dispatch(ctx, evaluation, account, link); err != nil {
		return nil, err
	}

	sentAt := s.now()
	if err := s.evaluations.TouchSignatureRequest(ctx, evaluation.ID, sentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSignatureState, "evaluation is no longer awaiting a signature")
		}
		return nil, internalError(err, "failed to record signature resend")
	}
	s.metrics.RecordSignatureTransition(SignatureTransitionResent)
	s.recordAudit(ctx, actor, meta, models.AuditActionSignatureResend, evaluation.ID, account.ContactEmail)

	return &models.SignatureRequestResult{
		EvaluationID: evaluation.ID,
		Status:       models.SignatureStatusSent,
		SentTo:       account.ContactEmail,
		SentAt:       sentAt,
		SigningURL:   link,
	}, nil
}

// LookupByToken returns the public view of an evaluation awaiting signature.
// Unknown tokens and evaluations that are not in the sent state are not found.
func (s *SignatureService) LookupByToken(ctx context.Context, token string) (*models.PublicEvaluation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "signature request not found")
	}
	evaluation, err := s.evaluations.GetSentByToken(ctx, token)
	if err != nil {
		return nil, notFoundOr(err, "signature request", "load signature request")
	}

	view := &models.PublicEvaluation{
		EvaluationNumber:    evaluation.EvaluationNumber,
		SalesConsultantName: evaluation.SalesConsultantName,
		StartDate:           evaluation.StartDate,
		EndDate:             evaluation.EndDate,
		SignatureStatus:     evaluation.SignatureStatus,
		RequestSentAt:       evaluation.SignatureRequestSentAt,
		LineItems:           s.publicLineItems(ctx, evaluation.LineItems),
	}
	if account, err := s.accounts.GetByID(ctx, evaluation.AccountID); err == nil {
		view.AccountName = account.Name
		view.AccountAddress = formatAddress(account)
	} else {
		s.logger.Warn("signature lookup without account", zap.String("evaluation_id", evaluation.ID), zap.Error(err))
	}
	return view, nil
}

// SubmitSignature records the customer's signature. Only the first submission
// for a token succeeds; later ones see not found.
func (s *SignatureService) SubmitSignature(ctx context.Context, token string, submission models.SignatureSubmission) (*models.SignatureReceipt, error) {
	submission.Name = strings.TrimSpace(submission.Name)
	submission.Email = strings.TrimSpace(submission.Email)
	submission.Title = strings.TrimSpace(submission.Title)
	submission.PONumber = strings.TrimSpace(submission.PONumber)
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "signature request not found")
	}
	if _, err := s.evaluations.GetSentByToken(ctx, token); err != nil {
		return nil, notFoundOr(err, "signature request", "load signature request")
	}
	if err := s.validator.Struct(submission); err != nil {
		return nil, validationError(err, "name, email, title and PO number are required")
	}
	if err := ValidateSignatureImage(submission.SignatureDataURL); err != nil {
		return nil, validationError(err, "signature image is invalid")
	}

	signed, err := s.evaluations.CompleteSignature(ctx, models.CompletedSignature{
		Token:            token,
		SignedAt:         s.now(),
		Name:             submission.Name,
		Email:            submission.Email,
		Title:            submission.Title,
		PONumber:         submission.PONumber,
		SignatureDataURL: submission.SignatureDataURL,
	})
	if err != nil {
		return nil, notFoundOr(err, "signature request", "record signature")
	}
	s.metrics.RecordSignatureTransition(SignatureTransitionSigned)

	if s.notifier != nil {
		if err := s.notifier.SignatureCompleted(ctx, signed); err != nil {
			s.logger.Warn("queue signature notification", zap.String("evaluation_id", signed.ID), zap.Error(err))
		}
	}

	receipt := &models.SignatureReceipt{
		EvaluationNumber: signed.EvaluationNumber,
		SignatureStatus:  signed.SignatureStatus,
	}
	if signed.SignedAt != nil {
		receipt.SignedAt = *signed.SignedAt
	}
	return receipt, nil
}

// ValidateSignatureImage checks dataURL is a base64 PNG with at least one inked pixel.
func ValidateSignatureImage(dataURL string) error {
	img, err := DecodeSignatureImage(dataURL)
	if err != nil {
		return err
	}
	if !hasInk(img) {
		return errors.New("signature is blank")
	}
	return nil
}

// DecodeSignatureImage decodes a data:image/png;base64 URL. The PNG header is
// checked against the signature pad bounds before any pixel data is decoded.
func DecodeSignatureImage(dataURL string) (image.Image, error) {
	raw, err := SignaturePNG(dataURL)
	if err != nil {
		return nil, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode png header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxSignatureWidth || cfg.Height > maxSignatureHeight {
		return nil, fmt.Errorf("signature image is %dx%d, limit is %dx%d", cfg.Width, cfg.Height, maxSignatureWidth, maxSignatureHeight)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// SignaturePNG returns the raw PNG bytes carried by dataURL.
func SignaturePNG(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, errors.New("signature must be a data:image/png;base64 URL")
	}
	encoded := strings.TrimPrefix(dataURL, pngDataURLPrefix)
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxSignatureBytes {
		return nil, errors.New("signature image too large")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return raw, nil
}

// hasInk reports whether any pixel is visible and not white.
func hasInk(img image.Image) bool {
	const near = 0xF000
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			if r < near || g < near || b < near {
				return true
			}
		}
	}
	return false
}

func (s *SignatureService) loadForRequest(ctx context.Context, evaluationID string, actor *models.JWTClaims) (*models.Evaluation, *models.Account, error) {
	evaluation, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, nil, notFoundOr(err, "evaluation", "load evaluation")
	}
	if !canAccessEvaluation(actor, evaluation) {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
	}
	account, err := s.accounts.GetByID(ctx, evaluation.AccountID)
	if err != nil {
		return nil, nil, notFoundOr(err, "account", "load account")
	}
	if strings.TrimSpace(account.ContactEmail) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "account has no contact email")
	}
	return evaluation, account, nil
}

func (s *SignatureService) dispatch(ctx context.Context, evaluation *models.Evaluation, account *models.Account, link string) error {
	msg := mailer.Message{
		To:       account.ContactEmail,
		Subject:  fmt.Sprintf("Signature requested: evaluation %s", evaluation.EvaluationNumber),
		Body:     signatureRequestBody(evaluation, account, link),
		FromName: s.config.FromName,
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.metrics.RecordSignatureTransition(SignatureTransitionDispatchFailed)
		s.logger.Error("signature email dispatch failed",
			zap.String("evaluation_id", evaluation.ID),
			zap.String("to", account.ContactEmail),
			zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrEmailDispatch.Code, appErrors.ErrEmailDispatch.Status, "failed to send signature request email")
	}
	return nil
}

func (s *SignatureService) publicLineItems(ctx context.Context, items models.LineItems) []models.PublicLineItem {
	names := map[string]string{}
	if s.products != nil {
		resolved, err := s.products.CodesToNames(ctx, items.Codes())
		if err != nil {
			s.logger.Warn("resolve product names", zap.Error(err))
		} else {
			names = resolved
		}
	}
	out := make([]models.PublicLineItem, 0, len(items))
	for _, item := range items {
		name := names[item.SKUCode]
		if name == "" {
			name = item.SKUCode
		}
		out = append(out, models.PublicLineItem{SKUCode: item.SKUCode, ProductName: name, Quantity: item.Quantity, Notes: item.Notes})
	}
	return out
}

func (s *SignatureService) recordAudit(ctx context.Context, actor *models.JWTClaims, meta models.LoginRequest, action, evaluationID, sentTo string) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, _ := json.Marshal(map[string]interface{}{"sent_to": sentTo})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "evaluations",
		ResourceID: &evaluationID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record signature audit log", zap.Error(err))
	}
}

func signatureRequestBody(evaluation *models.Evaluation, account *models.Account, link string) string {
	var b strings.Builder
	greeting := account.ContactName
	if greeting == "" {
		greeting = account.Name
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", greeting)
	fmt.Fprintf(&b, "%s has requested your signature on evaluation %s for %s.\n\n",
		evaluation.SalesConsultantName, evaluation.EvaluationNumber, account.Name)
	fmt.Fprintf(&b, "Review and sign here:\n%s\n\n", link)
	b.WriteString("If you were not expecting this request you can ignore this email.\n")
	return b.String()
}

func formatAddress(account *models.Account) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{account.Address, account.City, strings.TrimSpace(account.State + " " + account.Zip)} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// canAccessEvaluation reports whether actor may see evaluation. Admins see
// everything; sales users only their own. A nil actor is an internal caller.
func canAccessEvaluation(actor *models.JWTClaims, evaluation *models.Evaluation) bool {
	if actor == nil || actor.IsAdmin() {
		return true
	}
	return evaluation.SalesConsultantID == actor.UserID
}
