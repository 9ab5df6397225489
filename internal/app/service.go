/**
 * @description
 * This file contains the core business logic for the deal-service. The
 * `Service` struct is the deal lifecycle coordinator: it receives lifecycle
 * intents, issues the corresponding ledger call, normalizes the ledger's
 * answer into the canonical deal model, arms or cancels the deadline timers,
 * records an audit entry for every mutation, and publishes lifecycle events
 * to RabbitMQ.
 *
 * The ledger is the source of truth. Every mutation issues exactly one
 * ledger write; the deal state returned to callers comes from reading the
 * ledger record back, never from local bookkeeping. The read-back after a
 * successful write is best-effort: if it fails the mutation stands (the
 * ledger call succeeded), the timer step is skipped, and the periodic
 * reconciliation pass repairs the registry.
 *
 * @dependencies
 * - github.com/google/uuid: Pre-generated deal identifiers.
 * - internal/audit, internal/scheduler, internal/telemetry: Orchestration collaborators.
 * - pkg/ledgerclient, pkg/rabbitmq: External service communication.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/actor"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/apperr"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/audit"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/scheduler"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/telemetry"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/ledgerclient"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/rabbitmq"
)

// dealsTable is the audit table name for deal records.
const dealsTable = "deals"

// Ledger is the escrow ledger boundary consumed by the coordinator. It is
// implemented by *ledgerclient.Client; tests substitute a stub.
type Ledger interface {
	CreateDeal(ctx context.Context, params ledgerclient.CreateDealParams) (string, error)
	FundDeal(ctx context.Context, dealID string) (string, error)
	SubmitContent(ctx context.Context, dealID, contentURL string) (string, error)
	ApproveDeal(ctx context.Context, dealID string) (string, error)
	InitiateDispute(ctx context.Context, dealID, reason string) (string, error)
	ResolveDispute(ctx context.Context, dealID string, accept bool) (string, error)
	CancelDeal(ctx context.Context, dealID string) (string, error)
	EmergencyCancelDeal(ctx context.Context, dealID string) (string, error)
	AutoReleasePayment(ctx context.Context, dealID string) (string, error)
	AutoRefundAfterDeadline(ctx context.Context, dealID string) (string, error)
	GetDeal(ctx context.Context, dealID string) (*ledgerclient.RawDeal, error)
	GetDeals(ctx context.Context, address string, isBrand bool) ([]ledgerclient.RawDeal, error)
	CanAutoRelease(ctx context.Context, dealID string) (bool, error)
	PlatformFeeBps(ctx context.Context) (int64, error)
	TokenMetadata(ctx context.Context) (*ledgerclient.RawTokenMetadata, error)
}

// RateLimiter is the fixed-window limiter applied to spam-prone operations.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the deal lifecycle coordination logic.
type Service struct {
	ledger        Ledger
	audits        *audit.Service
	sched         *scheduler.Scheduler
	producer      rabbitmq.Publisher
	logger        *slog.Logger
	eventExchange string

	rateLimiter        RateLimiter
	createLimitPerMin  int
	disputeLimitPerMin int
}

// NewService creates a new deal coordinator instance.
func NewService(ledger Ledger, audits *audit.Service, sched *scheduler.Scheduler, producer rabbitmq.Publisher, logger *slog.Logger, eventExchange string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:        ledger,
		audits:        audits,
		sched:         sched,
		producer:      producer,
		logger:        logger,
		eventExchange: eventExchange,
	}
}

// SetRateLimiter enables per-actor rate limiting on deal creation and
// dispute initiation. Zero limits disable the corresponding check.
func (s *Service) SetRateLimiter(limiter RateLimiter, createPerMinute, disputePerMinute int) {
	s.rateLimiter = limiter
	s.createLimitPerMin = createPerMinute
	s.disputeLimitPerMin = disputePerMinute
}

// MutationResult is returned by every lifecycle mutation.
type MutationResult struct {
	DealID string       `json:"deal_id"`
	TxRef  string       `json:"tx_ref"`
	Deal   *domain.Deal `json:"deal,omitempty"`
}

// CreateDeal registers a new escrow deal on the ledger. The deal id is
// pre-generated so the caller can reference the deal before ledger
// confirmation. Nothing is scheduled yet: no deadline risk exists until the
// deal is funded.
func (s *Service) CreateDeal(ctx context.Context, brand string, req domain.CreateDealRequest) (*MutationResult, error) {
	meta := map[string]any{"brand": brand, "creator": req.Creator}
	return telemetry.Run(ctx, "deal.create", meta, func(ctx context.Context) (*MutationResult, error) {
		if brand == "" {
			return nil, apperr.Validation("brand address is required")
		}
		if req.Creator == "" {
			return nil, apperr.Validation("creator address is required")
		}
		if req.Amount <= 0 {
			return nil, apperr.Validation("amount must be positive")
		}
		if req.Deadline <= time.Now().Unix() {
			return nil, apperr.Validation("deadline must be in the future")
		}
		if req.BriefHash == "" {
			return nil, apperr.Validation("brief hash is required")
		}
		if err := s.consumeRateLimit(ctx, "deal_create", brand, s.createLimitPerMin); err != nil {
			return nil, err
		}

		dealID := uuid.New().String()
		txRef, err := s.ledger.CreateDeal(ctx, ledgerclient.CreateDealParams{
			DealID:    dealID,
			Brand:     brand,
			Creator:   req.Creator,
			Amount:    req.Amount,
			Deadline:  req.Deadline,
			BriefHash: req.BriefHash,
		})
		if err != nil {
			return nil, err
		}

		deal := s.rereadAfterWrite(ctx, dealID)
		s.recordAudit(ctx, dealID, domain.ActionCreate, deal, txRef)
		s.publishEvent(ctx, dealID, domain.ActionCreate, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// FundDeal locks the brand's funds into escrow and arms the auto-refund
// timer for the content deadline, covering the case content is never
// submitted.
func (s *Service) FundDeal(ctx context.Context, dealID string) (*MutationResult, error) {
	meta := map[string]any{"deal_id": dealID}
	return telemetry.Run(ctx, "deal.fund", meta, func(ctx context.Context) (*MutationResult, error) {
		if dealID == "" {
			return nil, apperr.Validation("deal id is required")
		}

		txRef, err := s.ledger.FundDeal(ctx, dealID)
		if err != nil {
			return nil, err
		}

		deal := s.rereadAfterWrite(ctx, dealID)
		if deal != nil {
			s.sched.Schedule(dealID, deal.DeadlineTime(), s.autoRefundCallback(dealID))
		}
		s.recordAudit(ctx, dealID, domain.ActionFund, deal, txRef)
		s.publishEvent(ctx, dealID, domain.ActionFund, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// SubmitContent records the creator's submission and replaces the
// funding-deadline job with an auto-release job firing at the review
// deadline: submission supersedes the original deadline risk.
func (s *Service) SubmitContent(ctx context.Context, dealID, contentURL string) (*MutationResult, error) {
	meta := map[string]any{"deal_id": dealID}
	return telemetry.Run(ctx, "deal.submit_content", meta, func(ctx context.Context) (*MutationResult, error) {
		if dealID == "" {
			return nil, apperr.Validation("deal id is required")
		}
		if contentURL == "" {
			return nil, apperr.Validation("content url is required")
		}

		txRef, err := s.ledger.SubmitContent(ctx, dealID, contentURL)
		if err != nil {
			return nil, err
		}

		deal := s.rereadAfterWrite(ctx, dealID)
		if deal != nil && deal.ReviewDeadline != nil {
			s.sched.Schedule(dealID, deal.ReviewDeadlineTime(), s.autoReleaseCallback(dealID))
		}
		s.recordAudit(ctx, dealID, domain.ActionSubmit, deal, txRef)
		s.publishEvent(ctx, dealID, domain.ActionSubmit, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// ApproveDeal releases escrow to the creator and cancels any outstanding
// timer: a human resolution preempts the deadline.
func (s *Service) ApproveDeal(ctx context.Context, dealID string) (*MutationResult, error) {
	return s.resolveMutation(ctx, "deal.approve", dealID, domain.ActionApprove, func(ctx context.Context) (string, error) {
		return s.ledger.ApproveDeal(ctx, dealID)
	})
}

// InitiateDispute flags the deal as disputed. The armed timer keeps running:
// a dispute does not remove the underlying deadline risk until resolved.
func (s *Service) InitiateDispute(ctx context.Context, dealID, reason string) (*MutationResult, error) {
	meta := map[string]any{"deal_id": dealID}
	return telemetry.Run(ctx, "deal.dispute", meta, func(ctx context.Context) (*MutationResult, error) {
		if dealID == "" {
			return nil, apperr.Validation("deal id is required")
		}
		if reason == "" {
			return nil, apperr.Validation("dispute reason is required")
		}
		subject := dealID
		if info, ok := actor.FromContext(ctx); ok && info.ActorID != "" {
			subject = info.ActorID
		}
		if err := s.consumeRateLimit(ctx, "deal_dispute", subject, s.disputeLimitPerMin); err != nil {
			return nil, err
		}

		txRef, err := s.ledger.InitiateDispute(ctx, dealID, reason)
		if err != nil {
			return nil, err
		}

		deal := s.rereadAfterWrite(ctx, dealID)
		s.recordAudit(ctx, dealID, domain.ActionDispute, deal, txRef)
		s.publishEvent(ctx, dealID, domain.ActionDispute, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// ResolveDispute settles a dispute and cancels any outstanding timer.
func (s *Service) ResolveDispute(ctx context.Context, dealID string, accept bool) (*MutationResult, error) {
	return s.resolveMutation(ctx, "deal.resolve_dispute", dealID, domain.ActionResolve, func(ctx context.Context) (string, error) {
		return s.ledger.ResolveDispute(ctx, dealID, accept)
	})
}

// CancelDeal cancels an unfunded deal and cancels any outstanding timer.
func (s *Service) CancelDeal(ctx context.Context, dealID string) (*MutationResult, error) {
	return s.resolveMutation(ctx, "deal.cancel", dealID, domain.ActionCancel, func(ctx context.Context) (string, error) {
		return s.ledger.CancelDeal(ctx, dealID)
	})
}

// EmergencyCancelDeal force-cancels a funded deal through the emergency path
// and cancels any outstanding timer.
func (s *Service) EmergencyCancelDeal(ctx context.Context, dealID string) (*MutationResult, error) {
	return s.resolveMutation(ctx, "deal.emergency_cancel", dealID, domain.ActionEmergencyCancel, func(ctx context.Context) (string, error) {
		return s.ledger.EmergencyCancelDeal(ctx, dealID)
	})
}

// AutoReleasePayment is the system-triggered release fired when a review
// deadline elapses without human resolution. It runs with no actor in
// context and is audited with a null actor.
func (s *Service) AutoReleasePayment(ctx context.Context, dealID string) (*MutationResult, error) {
	meta := map[string]any{"deal_id": dealID, "trigger": "system"}
	return telemetry.Run(ctx, "deal.auto_release", meta, func(ctx context.Context) (*MutationResult, error) {
		eligible, err := s.ledger.CanAutoRelease(ctx, dealID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			s.logger.Info("auto-release skipped; ledger reports not eligible", "deal_id", dealID)
			return &MutationResult{DealID: dealID}, nil
		}

		txRef, err := s.ledger.AutoReleasePayment(ctx, dealID)
		if err != nil {
			return nil, err
		}

		deal := s.rereadAfterWrite(ctx, dealID)
		s.recordAudit(ctx, dealID, domain.ActionAutoRelease, deal, txRef)
		s.publishEvent(ctx, dealID, domain.ActionAutoRelease, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// AutoRefundAfterDeadline is the system-triggered refund fired when the
// content deadline elapses without a submission.
func (s *Service) AutoRefundAfterDeadline(ctx context.Context, dealID string) (*MutationResult, error) {
	meta := map[string]any{"deal_id": dealID, "trigger": "system"}
	return telemetry.Run(ctx, "deal.auto_refund", meta, func(ctx context.Context) (*MutationResult, error) {
		txRef, err := s.ledger.AutoRefundAfterDeadline(ctx, dealID)
		if err != nil {
			return nil, err
		}

		deal := s.rereadAfterWrite(ctx, dealID)
		s.recordAudit(ctx, dealID, domain.ActionAutoRefund, deal, txRef)
		s.publishEvent(ctx, dealID, domain.ActionAutoRefund, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// GetDealByID reads one deal off the ledger. Reads are not audited.
func (s *Service) GetDealByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	meta := map[string]any{"deal_id": dealID}
	return telemetry.Run(ctx, "deal.get", meta, func(ctx context.Context) (*domain.Deal, error) {
		if dealID == "" {
			return nil, apperr.Validation("deal id is required")
		}
		return s.readDeal(ctx, dealID)
	})
}

// GetDeals lists the deals where address participates as brand or creator.
func (s *Service) GetDeals(ctx context.Context, address string, isBrand bool) ([]domain.Deal, error) {
	meta := map[string]any{"address": address, "is_brand": isBrand}
	return telemetry.Run(ctx, "deal.list", meta, func(ctx context.Context) ([]domain.Deal, error) {
		if address == "" {
			return nil, apperr.Validation("address is required")
		}
		raws, err := s.ledger.GetDeals(ctx, address, isBrand)
		if err != nil {
			return nil, err
		}
		deals := make([]domain.Deal, 0, len(raws))
		for i := range raws {
			deal, err := dealFromRaw(&raws[i])
			if err != nil {
				return nil, err
			}
			if !deal.Exists {
				continue
			}
			deals = append(deals, *deal)
		}
		return deals, nil
	})
}

// PlatformInfo reads the public platform parameters off the ledger.
func (s *Service) PlatformInfo(ctx context.Context) (*domain.PlatformInfo, error) {
	return telemetry.Run(ctx, "platform.info", nil, func(ctx context.Context) (*domain.PlatformInfo, error) {
		feeBps, err := s.ledger.PlatformFeeBps(ctx)
		if err != nil {
			return nil, err
		}
		token, err := s.ledger.TokenMetadata(ctx)
		if err != nil {
			return nil, err
		}
		decimals, err := ledgerclient.ToInt64(token.Decimals)
		if err != nil {
			return nil, apperr.Decode("malformed token decimals", err)
		}
		return &domain.PlatformInfo{
			FeeBps:      feeBps,
			TokenSymbol: token.Symbol,
			TokenName:   token.Name,
			Decimals:    decimals,
		}, nil
	})
}

// ScheduledDealIDs returns the deal ids with an armed timer, for diagnostics.
func (s *Service) ScheduledDealIDs() []string {
	return s.sched.Keys()
}

// resolveMutation is the shared flow for human resolutions that preempt the
// deadline timer: write, cancel the job, audit, publish.
func (s *Service) resolveMutation(ctx context.Context, span, dealID string, action domain.AuditAction, write func(ctx context.Context) (string, error)) (*MutationResult, error) {
	meta := map[string]any{"deal_id": dealID}
	return telemetry.Run(ctx, span, meta, func(ctx context.Context) (*MutationResult, error) {
		if dealID == "" {
			return nil, apperr.Validation("deal id is required")
		}

		txRef, err := write(ctx)
		if err != nil {
			return nil, err
		}

		s.sched.Cancel(dealID)
		deal := s.rereadAfterWrite(ctx, dealID)
		s.recordAudit(ctx, dealID, action, deal, txRef)
		s.publishEvent(ctx, dealID, action, deal, txRef)
		return &MutationResult{DealID: dealID, TxRef: txRef, Deal: deal}, nil
	})
}

// readDeal reads and normalizes one deal, failing with NotFound when the
// ledger reports non-existence.
func (s *Service) readDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	raw, err := s.ledger.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	deal, err := dealFromRaw(raw)
	if err != nil {
		return nil, err
	}
	if !deal.Exists {
		return nil, apperr.NotFound(fmt.Sprintf("deal %s does not exist", dealID))
	}
	return deal, nil
}

// rereadAfterWrite reads the deal back after a successful write. The write
// already committed, so a failed read-back is logged and swallowed; the
// reconciliation pass repairs any skipped timer work.
func (s *Service) rereadAfterWrite(ctx context.Context, dealID string) *domain.Deal {
	deal, err := s.readDeal(ctx, dealID)
	if err != nil {
		s.logger.Warn("re-read after write failed; timer step skipped until reconciliation",
			"deal_id", dealID, "error", err)
		return nil
	}
	return deal
}

// recordAudit appends the audit entry for one committed mutation. The
// mutation already stands on the ledger, so an audit failure is logged, not
// raised.
func (s *Service) recordAudit(ctx context.Context, dealID string, action domain.AuditAction, after *domain.Deal, txRef string) {
	params := audit.RecordParams{
		TableName: dealsTable,
		RecordID:  dealID,
		Action:    action,
		After:     after.Snapshot(),
		Metadata:  map[string]string{"tx_ref": txRef},
	}
	if _, err := s.audits.Record(ctx, params); err != nil {
		s.logger.Error("audit record failed", "deal_id", dealID, "action", action, "error", err)
	}
}

// publishEvent emits the lifecycle event for downstream consumers.
// Publishing is best-effort; a broker outage must not fail a committed
// mutation.
func (s *Service) publishEvent(ctx context.Context, dealID string, action domain.AuditAction, deal *domain.Deal, txRef string) {
	if s.producer == nil {
		return
	}
	event := rabbitmq.DealEvent{
		DealID:    dealID,
		Action:    string(action),
		ActorID:   actor.ID(ctx),
		TxRef:     txRef,
		Timestamp: time.Now().UTC(),
	}
	if deal != nil {
		event.Status = string(deal.Status)
	}
	if err := s.producer.PublishDealEvent(ctx, s.eventExchange, event); err != nil {
		s.logger.Warn("deal event publish failed", "deal_id", dealID, "action", action, "error", err)
	}
}

func (s *Service) autoRefundCallback(dealID string) scheduler.Callback {
	return func(ctx context.Context) {
		if _, err := s.AutoRefundAfterDeadline(ctx, dealID); err != nil {
			s.logger.Error("auto-refund failed", "deal_id", dealID, "error", err)
		}
	}
}

func (s *Service) autoReleaseCallback(dealID string) scheduler.Callback {
	return func(ctx context.Context) {
		if _, err := s.AutoReleasePayment(ctx, dealID); err != nil {
			s.logger.Error("auto-release failed", "deal_id", dealID, "error", err)
		}
	}
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		// A limiter outage must not block deal flow.
		s.logger.Warn("rate limiter unavailable; allowing request", "scope", scope, "error", err)
		return nil
	}
	if count > limit {
		return &apperr.Error{
			Kind:    apperr.KindValidation,
			Message: fmt.Sprintf("rate limit exceeded; retry in %ds", retryAfter),
			Status:  http.StatusTooManyRequests,
		}
	}
	return nil
}
