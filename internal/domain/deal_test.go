package domain

import (
	"testing"
	"time"
)

func TestStatusFromCodeCoversEveryLedgerCode(t *testing.T) {
	expected := map[int64]DealStatus{
		0: StatusPending,
		1: StatusActive,
		2: StatusPendingReview,
		3: StatusDisputed,
		4: StatusCompleted,
		5: StatusCancelled,
	}

	for code, want := range expected {
		got, err := StatusFromCode(code)
		if err != nil {
			t.Fatalf("StatusFromCode(%d) returned error: %v", code, err)
		}
		if got != want {
			t.Fatalf("StatusFromCode(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestStatusFromCodeRejectsUnmappedCodes(t *testing.T) {
	for _, code := range []int64{-1, 6, 42} {
		if _, err := StatusFromCode(code); err == nil {
			t.Fatalf("expected error for unmapped code %d", code)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("expected COMPLETED and CANCELLED to be terminal")
	}
	for _, status := range []DealStatus{StatusPending, StatusActive, StatusPendingReview, StatusDisputed} {
		if status.Terminal() {
			t.Fatalf("expected %q to be non-terminal", status)
		}
	}
}

func TestDeadlineTimes(t *testing.T) {
	review := int64(1_700_003_600)
	deal := &Deal{Deadline: 1_700_000_000, ReviewDeadline: &review}

	if got := deal.DeadlineTime(); !got.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("unexpected deadline time: %v", got)
	}
	if got := deal.ReviewDeadlineTime(); !got.Equal(time.Unix(review, 0)) {
		t.Fatalf("unexpected review deadline time: %v", got)
	}

	deal.ReviewDeadline = nil
	if !deal.ReviewDeadlineTime().IsZero() {
		t.Fatal("expected zero time when review deadline unset")
	}
}

func TestSnapshotOmitsUnsetOptionalFields(t *testing.T) {
	deal := &Deal{
		Status:    StatusPending,
		Amount:    5000,
		Deadline:  1_700_000_000,
		BriefHash: "0xabc",
	}

	snap := deal.Snapshot()
	if snap["status"] != "PENDING" {
		t.Fatalf("unexpected status in snapshot: %v", snap["status"])
	}
	for _, key := range []string{"content_url", "review_deadline", "funded_at", "submitted_at", "disputed_at", "accepted_dispute"} {
		if _, present := snap[key]; present {
			t.Fatalf("expected unset field %q omitted from snapshot", key)
		}
	}
}

func TestSnapshotIncludesSetOptionalFields(t *testing.T) {
	url := "ipfs://content"
	fundedAt := int64(1_699_990_000)
	deal := &Deal{
		Status:     StatusActive,
		Amount:     5000,
		ContentURL: &url,
		FundedAt:   &fundedAt,
	}

	snap := deal.Snapshot()
	if snap["content_url"] != url {
		t.Fatalf("unexpected content_url: %v", snap["content_url"])
	}
	if snap["funded_at"] != fundedAt {
		t.Fatalf("unexpected funded_at: %v", snap["funded_at"])
	}
}

func TestNilDealSnapshotIsNil(t *testing.T) {
	var deal *Deal
	if snap := deal.Snapshot(); snap != nil {
		t.Fatalf("expected nil snapshot for nil deal, got %v", snap)
	}
}
