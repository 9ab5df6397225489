package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/audit"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/scheduler"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/ledgerclient"
)

// multiDealLedger serves a fixed set of deals keyed by id.
type multiDealLedger struct {
	Ledger

	deals map[string]*ledgerclient.RawDeal
}

func (l *multiDealLedger) GetDeal(ctx context.Context, dealID string) (*ledgerclient.RawDeal, error) {
	deal, ok := l.deals[dealID]
	if !ok {
		return nil, errors.New("gateway timeout")
	}
	return deal, nil
}

type knownIDsRepo struct {
	*stubAuditRepo

	ids     []string
	listErr error
}

func (r *knownIDsRepo) ListKnownDealIDs(ctx context.Context) ([]string, error) {
	return r.ids, r.listErr
}

func TestReconcileRearmsTimersFromLedgerState(t *testing.T) {
	review := time.Now().Add(72 * time.Hour).Unix()
	disputedReview := time.Now().Add(48 * time.Hour).Unix()

	active := rawDeal("deal-active", 1)
	pendingReview := rawDeal("deal-review", 2)
	pendingReview.ReviewDeadline = review
	disputed := rawDeal("deal-disputed", 3)
	disputed.ReviewDeadline = disputedReview
	completed := rawDeal("deal-done", 4)
	unfunded := rawDeal("deal-pending", 0)

	ledger := &multiDealLedger{deals: map[string]*ledgerclient.RawDeal{
		"deal-active":   active,
		"deal-review":   pendingReview,
		"deal-disputed": disputed,
		"deal-done":     completed,
		"deal-pending":  unfunded,
	}}
	repo := &knownIDsRepo{
		stubAuditRepo: &stubAuditRepo{},
		ids:           []string{"deal-active", "deal-review", "deal-disputed", "deal-done", "deal-pending", "deal-unreadable"},
	}
	sched := scheduler.New(nil)
	service := NewService(ledger, audit.NewService(repo, nil), sched, &stubProducer{}, nil, "deal_events")
	reconciler := NewReconciler(service, repo, nil)

	// A stale timer on a completed deal must be dropped.
	sched.Schedule("deal-done", time.Now().Add(time.Hour), func(context.Context) {})

	if err := reconciler.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	for _, key := range []string{"deal-active", "deal-review", "deal-disputed"} {
		if !sched.Contains(key) {
			t.Fatalf("expected timer re-armed for %s", key)
		}
	}
	for _, key := range []string{"deal-done", "deal-pending", "deal-unreadable"} {
		if sched.Contains(key) {
			t.Fatalf("expected no timer for %s", key)
		}
	}
}

func TestReconcileFailsWhenKnownIDsUnavailable(t *testing.T) {
	repo := &knownIDsRepo{stubAuditRepo: &stubAuditRepo{}, listErr: errors.New("database down")}
	sched := scheduler.New(nil)
	service := NewService(&multiDealLedger{}, audit.NewService(repo, nil), sched, &stubProducer{}, nil, "deal_events")
	reconciler := NewReconciler(service, repo, nil)

	if err := reconciler.Reconcile(context.Background()); err == nil {
		t.Fatal("expected error when known deal ids cannot be listed")
	}
}
