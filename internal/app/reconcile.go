/**
 * @description
 * Timer reconciliation for the deal coordinator. The scheduler registry is
 * in-memory and lost on restart, so this pass re-derives it from durable
 * state: the audit log knows every deal id this service has touched, and the
 * ledger knows each deal's current phase. Reconciliation runs once at
 * startup and then periodically on a cron schedule to repair any timer work
 * skipped by a failed read-back.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Periodic scheduling of the pass.
 * - internal/store: Source of known deal ids.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/store"
)

// Reconciler rebuilds the deadline-timer registry from the audit log and the
// ledger.
type Reconciler struct {
	service *Service
	repo    store.Repository
	logger  *slog.Logger
}

// NewReconciler creates a reconciler over the given coordinator and store.
func NewReconciler(service *Service, repo store.Repository, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{service: service, repo: repo, logger: logger}
}

// Reconcile walks every known deal and converges its timer state with the
// ledger's view. Per-deal failures are logged and skipped so one bad record
// cannot stall the pass; already-elapsed deadlines fire immediately.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	dealIDs, err := r.repo.ListKnownDealIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list known deal ids: %w", err)
	}

	var armed, cleared, failed int
	for _, dealID := range dealIDs {
		changed, err := r.reconcileDeal(ctx, dealID)
		if err != nil {
			failed++
			r.logger.Warn("deal reconciliation skipped", "deal_id", dealID, "error", err)
			continue
		}
		switch changed {
		case timerArmed:
			armed++
		case timerCleared:
			cleared++
		}
	}

	r.logger.Info("timer reconciliation pass complete",
		"known_deals", len(dealIDs), "armed", armed, "cleared", cleared, "failed", failed)
	return nil
}

type timerOutcome int

const (
	timerUnchanged timerOutcome = iota
	timerArmed
	timerCleared
)

func (r *Reconciler) reconcileDeal(ctx context.Context, dealID string) (timerOutcome, error) {
	s := r.service
	raw, err := s.ledger.GetDeal(ctx, dealID)
	if err != nil {
		return timerUnchanged, err
	}
	deal, err := dealFromRaw(raw)
	if err != nil {
		return timerUnchanged, err
	}

	switch {
	case !deal.Exists, deal.Status.Terminal(), deal.Status == domain.StatusPending:
		// No deadline risk in these phases; drop any stale timer.
		if s.sched.Contains(dealID) {
			s.sched.Cancel(dealID)
			return timerCleared, nil
		}
		return timerUnchanged, nil

	case deal.Status == domain.StatusActive:
		s.sched.Schedule(dealID, deal.DeadlineTime(), s.autoRefundCallback(dealID))
		return timerArmed, nil

	case deal.Status == domain.StatusPendingReview,
		deal.Status == domain.StatusDisputed:
		// Disputed deals keep their review timer running; the eligibility
		// check inside auto-release decides whether it may act.
		if deal.ReviewDeadline == nil {
			return timerUnchanged, nil
		}
		s.sched.Schedule(dealID, deal.ReviewDeadlineTime(), s.autoReleaseCallback(dealID))
		return timerArmed, nil
	}
	return timerUnchanged, nil
}

// StartCron runs an initial reconciliation pass and then schedules the pass
// on the given cron expression. The returned cron instance is already
// started; callers stop it during shutdown.
func (r *Reconciler) StartCron(ctx context.Context, schedule string) (*cron.Cron, error) {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error("startup reconciliation pass failed", "error", err)
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := r.Reconcile(context.Background()); err != nil {
			r.logger.Error("periodic reconciliation pass failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconciliation schedule %q: %w", schedule, err)
	}
	c.Start()
	r.logger.Info("periodic timer reconciliation scheduled", "schedule", schedule)
	return c, nil
}
