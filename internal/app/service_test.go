package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/actor"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/apperr"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/audit"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/scheduler"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/store"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/ledgerclient"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/rabbitmq"
)

// stubLedger overrides only the methods a test exercises.
type stubLedger struct {
	Ledger

	deal          *ledgerclient.RawDeal
	getErr        error
	writeErr      error
	canRelease    bool
	canReleaseErr error

	writes []string
}

func (l *stubLedger) record(name string) (string, error) {
	if l.writeErr != nil {
		return "", l.writeErr
	}
	l.writes = append(l.writes, name)
	return "0xtx-" + name, nil
}

func (l *stubLedger) CreateDeal(ctx context.Context, params ledgerclient.CreateDealParams) (string, error) {
	return l.record("create")
}

func (l *stubLedger) FundDeal(ctx context.Context, dealID string) (string, error) {
	return l.record("fund")
}

func (l *stubLedger) SubmitContent(ctx context.Context, dealID, contentURL string) (string, error) {
	return l.record("submit")
}

func (l *stubLedger) ApproveDeal(ctx context.Context, dealID string) (string, error) {
	return l.record("approve")
}

func (l *stubLedger) InitiateDispute(ctx context.Context, dealID, reason string) (string, error) {
	return l.record("dispute")
}

func (l *stubLedger) ResolveDispute(ctx context.Context, dealID string, accept bool) (string, error) {
	return l.record("resolve")
}

func (l *stubLedger) CancelDeal(ctx context.Context, dealID string) (string, error) {
	return l.record("cancel")
}

func (l *stubLedger) EmergencyCancelDeal(ctx context.Context, dealID string) (string, error) {
	return l.record("emergency_cancel")
}

func (l *stubLedger) AutoReleasePayment(ctx context.Context, dealID string) (string, error) {
	return l.record("auto_release")
}

func (l *stubLedger) AutoRefundAfterDeadline(ctx context.Context, dealID string) (string, error) {
	return l.record("auto_refund")
}

func (l *stubLedger) GetDeal(ctx context.Context, dealID string) (*ledgerclient.RawDeal, error) {
	if l.getErr != nil {
		return nil, l.getErr
	}
	return l.deal, nil
}

func (l *stubLedger) CanAutoRelease(ctx context.Context, dealID string) (bool, error) {
	return l.canRelease, l.canReleaseErr
}

// stubAuditRepo captures audit inserts in memory.
type stubAuditRepo struct {
	store.Repository

	inserted  []*domain.AuditLogEntry
	insertErr error
}

func (r *stubAuditRepo) InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, entry)
	return nil
}

// stubProducer captures published deal events.
type stubProducer struct {
	events     []rabbitmq.DealEvent
	publishErr error
}

func (p *stubProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *stubProducer) PublishDealEvent(ctx context.Context, exchange string, event rabbitmq.DealEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.events = append(p.events, event)
	return nil
}

func (p *stubProducer) Close() {}

type testHarness struct {
	service  *Service
	ledger   *stubLedger
	audits   *stubAuditRepo
	producer *stubProducer
	sched    *scheduler.Scheduler
}

func newHarness(deal *ledgerclient.RawDeal) *testHarness {
	ledger := &stubLedger{deal: deal}
	auditRepo := &stubAuditRepo{}
	producer := &stubProducer{}
	sched := scheduler.New(nil)
	service := NewService(ledger, audit.NewService(auditRepo, nil), sched, producer, nil, "deal_events")
	return &testHarness{service: service, ledger: ledger, audits: auditRepo, producer: producer, sched: sched}
}

func rawDeal(id string, statusCode int64) *ledgerclient.RawDeal {
	return &ledgerclient.RawDeal{
		ID:        id,
		Brand:     "brand-1",
		Creator:   "creator-1",
		Amount:    int64(5000),
		Deadline:  time.Now().Add(24 * time.Hour).Unix(),
		BriefHash: "0xbrief",
		Status:    statusCode,
		Exists:    true,
	}
}

func actorCtx(id string) context.Context {
	return actor.WithInfo(context.Background(), actor.Info{ActorID: id, OriginIP: "203.0.113.7"})
}

func TestCreateDealValidatesInput(t *testing.T) {
	h := newHarness(rawDeal("deal-1", 0))

	cases := []struct {
		name  string
		brand string
		req   domain.CreateDealRequest
	}{
		{"missing brand", "", domain.CreateDealRequest{Creator: "c", Amount: 1, Deadline: time.Now().Add(time.Hour).Unix(), BriefHash: "0x"}},
		{"missing creator", "b", domain.CreateDealRequest{Amount: 1, Deadline: time.Now().Add(time.Hour).Unix(), BriefHash: "0x"}},
		{"non-positive amount", "b", domain.CreateDealRequest{Creator: "c", Amount: 0, Deadline: time.Now().Add(time.Hour).Unix(), BriefHash: "0x"}},
		{"past deadline", "b", domain.CreateDealRequest{Creator: "c", Amount: 1, Deadline: time.Now().Add(-time.Hour).Unix(), BriefHash: "0x"}},
		{"missing brief hash", "b", domain.CreateDealRequest{Creator: "c", Amount: 1, Deadline: time.Now().Add(time.Hour).Unix()}},
	}

	for _, tc := range cases {
		_, err := h.service.CreateDeal(context.Background(), tc.brand, tc.req)
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	if len(h.ledger.writes) != 0 {
		t.Fatalf("expected no ledger writes for invalid input, got %v", h.ledger.writes)
	}
}

func TestCreateDealWritesAuditAndEvent(t *testing.T) {
	h := newHarness(rawDeal("deal-1", 0))

	result, err := h.service.CreateDeal(actorCtx("brand-1"), "brand-1", domain.CreateDealRequest{
		Creator:   "creator-1",
		Amount:    5000,
		Deadline:  time.Now().Add(24 * time.Hour).Unix(),
		BriefHash: "0xbrief",
	})
	if err != nil {
		t.Fatalf("CreateDeal returned error: %v", err)
	}
	if result.DealID == "" || result.TxRef != "0xtx-create" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if h.sched.Contains(result.DealID) {
		t.Fatal("expected no timer armed on create")
	}

	if len(h.audits.inserted) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(h.audits.inserted))
	}
	entry := h.audits.inserted[0]
	if entry.Action != domain.ActionCreate || entry.RecordID != result.DealID {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.ActorID == nil || *entry.ActorID != "brand-1" {
		t.Fatalf("expected actor attribution, got %v", entry.ActorID)
	}
	if entry.Metadata["tx_ref"] != "0xtx-create" {
		t.Fatalf("expected tx ref metadata, got %v", entry.Metadata)
	}

	if len(h.producer.events) != 1 || h.producer.events[0].Action != "CREATE" {
		t.Fatalf("expected one CREATE event, got %v", h.producer.events)
	}
}

func TestFundArmsAutoRefundAtDeadline(t *testing.T) {
	deal := rawDeal("deal-1", 1)
	h := newHarness(deal)

	result, err := h.service.FundDeal(actorCtx("brand-1"), "deal-1")
	if err != nil {
		t.Fatalf("FundDeal returned error: %v", err)
	}
	if result.TxRef != "0xtx-fund" {
		t.Fatalf("unexpected tx ref: %q", result.TxRef)
	}
	if !h.sched.Contains("deal-1") {
		t.Fatal("expected auto-refund timer armed after funding")
	}
}

func TestSubmitReplacesTimerWithReviewDeadline(t *testing.T) {
	deal := rawDeal("deal-1", 1)
	h := newHarness(deal)

	if _, err := h.service.FundDeal(actorCtx("brand-1"), "deal-1"); err != nil {
		t.Fatalf("FundDeal returned error: %v", err)
	}

	review := time.Now().Add(72 * time.Hour).Unix()
	deal.Status = int64(2)
	deal.ReviewDeadline = review
	url := "ipfs://content"
	deal.ContentURL = url

	if _, err := h.service.SubmitContent(actorCtx("creator-1"), "deal-1", url); err != nil {
		t.Fatalf("SubmitContent returned error: %v", err)
	}
	if !h.sched.Contains("deal-1") {
		t.Fatal("expected auto-release timer armed after submission")
	}
	if got := len(h.sched.Keys()); got != 1 {
		t.Fatalf("expected exactly one timer for the deal, got %d", got)
	}
}

func TestApproveCancelsTimer(t *testing.T) {
	deal := rawDeal("deal-1", 1)
	h := newHarness(deal)

	if _, err := h.service.FundDeal(actorCtx("brand-1"), "deal-1"); err != nil {
		t.Fatalf("FundDeal returned error: %v", err)
	}

	deal.Status = int64(4)
	if _, err := h.service.ApproveDeal(actorCtx("brand-1"), "deal-1"); err != nil {
		t.Fatalf("ApproveDeal returned error: %v", err)
	}
	if h.sched.Contains("deal-1") {
		t.Fatal("expected timer cancelled on approval")
	}
}

func TestDisputeKeepsTimerRunning(t *testing.T) {
	deal := rawDeal("deal-1", 2)
	review := time.Now().Add(72 * time.Hour).Unix()
	deal.ReviewDeadline = review
	h := newHarness(deal)

	url := "ipfs://content"
	if _, err := h.service.SubmitContent(actorCtx("creator-1"), "deal-1", url); err != nil {
		t.Fatalf("SubmitContent returned error: %v", err)
	}

	deal.Status = int64(3)
	if _, err := h.service.InitiateDispute(actorCtx("brand-1"), "deal-1", "content off-brief"); err != nil {
		t.Fatalf("InitiateDispute returned error: %v", err)
	}
	if !h.sched.Contains("deal-1") {
		t.Fatal("expected timer to keep running through a dispute")
	}
}

func TestResolveDisputeCancelsTimer(t *testing.T) {
	deal := rawDeal("deal-1", 3)
	review := time.Now().Add(72 * time.Hour).Unix()
	deal.ReviewDeadline = review
	h := newHarness(deal)
	h.sched.Schedule("deal-1", time.Unix(review, 0), func(context.Context) {})

	deal.Status = int64(4)
	if _, err := h.service.ResolveDispute(actorCtx("arbiter-1"), "deal-1", true); err != nil {
		t.Fatalf("ResolveDispute returned error: %v", err)
	}
	if h.sched.Contains("deal-1") {
		t.Fatal("expected timer cancelled on dispute resolution")
	}
}

func TestAutoReleaseRespectsEligibilityGuard(t *testing.T) {
	deal := rawDeal("deal-1", 2)
	h := newHarness(deal)
	h.ledger.canRelease = false

	result, err := h.service.AutoReleasePayment(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("AutoReleasePayment returned error: %v", err)
	}
	if result.TxRef != "" {
		t.Fatalf("expected no write when guard denies, got %q", result.TxRef)
	}
	if len(h.ledger.writes) != 0 {
		t.Fatalf("expected no ledger writes, got %v", h.ledger.writes)
	}

	h.ledger.canRelease = true
	deal.Status = int64(4)
	result, err = h.service.AutoReleasePayment(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("AutoReleasePayment returned error: %v", err)
	}
	if result.TxRef != "0xtx-auto_release" {
		t.Fatalf("expected write when guard allows, got %q", result.TxRef)
	}
}

func TestSystemActionsAuditWithNullActor(t *testing.T) {
	deal := rawDeal("deal-1", 5)
	h := newHarness(deal)

	if _, err := h.service.AutoRefundAfterDeadline(context.Background(), "deal-1"); err != nil {
		t.Fatalf("AutoRefundAfterDeadline returned error: %v", err)
	}
	if len(h.audits.inserted) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(h.audits.inserted))
	}
	entry := h.audits.inserted[0]
	if entry.Action != domain.ActionAutoRefund {
		t.Fatalf("unexpected action: %v", entry.Action)
	}
	if entry.ActorID != nil {
		t.Fatalf("expected null actor for system work, got %v", *entry.ActorID)
	}
}

func TestLedgerRevertBecomesLedgerError(t *testing.T) {
	h := newHarness(rawDeal("deal-1", 1))
	h.ledger.writeErr = &ledgerclient.RevertError{Raw: "reverted with the following reason: Deal not funded\nstack"}

	_, err := h.service.ApproveDeal(actorCtx("brand-1"), "deal-1")
	appErr := apperr.From(err)
	if appErr == nil || appErr.Kind != apperr.KindLedger {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if appErr.Reason != "Deal not funded" {
		t.Fatalf("expected cleaned revert reason, got %q", appErr.Reason)
	}
	if len(h.audits.inserted) != 0 {
		t.Fatalf("expected no audit entry for failed write, got %d", len(h.audits.inserted))
	}
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	deal := rawDeal("deal-1", 1)
	h := newHarness(deal)
	h.audits.insertErr = errors.New("database down")

	result, err := h.service.FundDeal(actorCtx("brand-1"), "deal-1")
	if err != nil {
		t.Fatalf("expected committed mutation to succeed despite audit failure, got %v", err)
	}
	if result.TxRef != "0xtx-fund" {
		t.Fatalf("unexpected tx ref: %q", result.TxRef)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	deal := rawDeal("deal-1", 1)
	h := newHarness(deal)
	h.producer.publishErr = errors.New("broker unreachable")

	if _, err := h.service.FundDeal(actorCtx("brand-1"), "deal-1"); err != nil {
		t.Fatalf("expected committed mutation to succeed despite publish failure, got %v", err)
	}
}

func TestRereadFailureSkipsTimerButMutationStands(t *testing.T) {
	h := newHarness(nil)
	h.ledger.getErr = errors.New("gateway timeout")

	result, err := h.service.FundDeal(actorCtx("brand-1"), "deal-1")
	if err != nil {
		t.Fatalf("expected mutation to stand, got %v", err)
	}
	if result.Deal != nil {
		t.Fatalf("expected no deal snapshot, got %+v", result.Deal)
	}
	if h.sched.Contains("deal-1") {
		t.Fatal("expected timer step skipped when re-read fails")
	}
}

func TestGetDealByIDNotFoundWhenAbsent(t *testing.T) {
	deal := rawDeal("deal-1", 0)
	deal.Exists = false
	h := newHarness(deal)

	_, err := h.service.GetDealByID(context.Background(), "deal-1")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestGetDealByIDDecodesStringNumerics(t *testing.T) {
	deal := rawDeal("deal-1", 1)
	deal.Amount = "5000"
	deal.Deadline = "1900000000"
	deal.Status = "1"
	h := newHarness(deal)

	got, err := h.service.GetDealByID(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("GetDealByID returned error: %v", err)
	}
	if got.Amount != 5000 || got.Deadline != 1_900_000_000 || got.Status != domain.StatusActive {
		t.Fatalf("unexpected decoded deal: %+v", got)
	}
}

func TestGetDealByIDRejectsUnmappedStatus(t *testing.T) {
	deal := rawDeal("deal-1", 9)
	h := newHarness(deal)

	_, err := h.service.GetDealByID(context.Background(), "deal-1")
	if !apperr.IsKind(err, apperr.KindDecode) {
		t.Fatalf("expected decode error for unmapped status, got %v", err)
	}
}

// fixedLimiter always reports the same counter value.
type fixedLimiter struct {
	count int
	err   error
}

func (l *fixedLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, 30, l.err
}

func TestCreateDealRateLimited(t *testing.T) {
	h := newHarness(rawDeal("deal-1", 0))
	h.service.SetRateLimiter(&fixedLimiter{count: 31}, 30, 10)

	_, err := h.service.CreateDeal(actorCtx("brand-1"), "brand-1", domain.CreateDealRequest{
		Creator:   "creator-1",
		Amount:    5000,
		Deadline:  time.Now().Add(24 * time.Hour).Unix(),
		BriefHash: "0xbrief",
	})
	appErr := apperr.From(err)
	if appErr == nil || appErr.HTTPStatus() != 429 {
		t.Fatalf("expected 429 rate limit error, got %v", err)
	}
	if len(h.ledger.writes) != 0 {
		t.Fatalf("expected no ledger write past the limit, got %v", h.ledger.writes)
	}
}

func TestRateLimiterOutageAllowsRequest(t *testing.T) {
	h := newHarness(rawDeal("deal-1", 0))
	h.service.SetRateLimiter(&fixedLimiter{err: errors.New("redis down")}, 30, 10)

	_, err := h.service.CreateDeal(actorCtx("brand-1"), "brand-1", domain.CreateDealRequest{
		Creator:   "creator-1",
		Amount:    5000,
		Deadline:  time.Now().Add(24 * time.Hour).Unix(),
		BriefHash: "0xbrief",
	})
	if err != nil {
		t.Fatalf("expected limiter outage to fail open, got %v", err)
	}
}
