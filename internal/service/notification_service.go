package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	"github.com/noah-isme/sales-eval-api/pkg/jobs"
	"github.com/noah-isme/sales-eval-api/pkg/mailer"
)

const jobTypeSignatureCompleted = "signature_completed"

// NotificationConfig sizes the background email queue.
type NotificationConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	FromName   string
}

// NotificationService delivers best-effort emails off the request path.
type NotificationService struct {
	mail    mailer.Sender
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	config  NotificationConfig
}

// NewNotificationService builds the service and its worker queue. Call Start before use.
func NewNotificationService(mail mailer.Sender, metrics *MetricsService, logger *zap.Logger, config NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{mail: mail, metrics: metrics, logger: logger, config: config}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.MaxRetries,
		RetryDelay: config.RetryDelay,
		Logger:     logger,
		OnResult: func(job jobs.Job, err error) {
			metrics.RecordNotification(job.Type, err)
		},
	})
	return svc
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for workers to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// SignatureCompleted tells the sales consultant their evaluation was signed.
func (s *NotificationService) SignatureCompleted(ctx context.Context, evaluation *models.Evaluation) error {
	to := strings.TrimSpace(evaluation.SalesConsultantEmail)
	if to == "" {
		s.logger.Info("skip signature notification without consultant email", zap.String("evaluation_id", evaluation.ID))
		return nil
	}
	msg := mailer.Message{
		To:       to,
		Subject:  fmt.Sprintf("Evaluation %s has been signed", evaluation.EvaluationNumber),
		Body:     signatureCompletedBody(evaluation),
		FromName: s.config.FromName,
	}
	return s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeSignatureCompleted, Payload: msg})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}
	return s.mail.Send(ctx, msg)
}

func signatureCompletedBody(evaluation *models.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", evaluation.SalesConsultantName)
	fmt.Fprintf(&b, "Evaluation %s was signed", evaluation.EvaluationNumber)
	if evaluation.SignedByName != nil {
		fmt.Fprintf(&b, " by %s", *evaluation.SignedByName)
		if evaluation.SignedByTitle != nil && *evaluation.SignedByTitle != "" {
			fmt.Fprintf(&b, " (%s)", *evaluation.SignedByTitle)
		}
	}
	if evaluation.SignedAt != nil {
		fmt.Fprintf(&b, " on %s", evaluation.SignedAt.Format("January 2, 2006"))
	}
	b.WriteString(".\n")
	if evaluation.CustomerPONumber != nil && *evaluation.CustomerPONumber != "" {
		fmt.Fprintf(&b, "Customer PO number: %s\n", *evaluation.CustomerPONumber)
	}
	return b.String()
}
