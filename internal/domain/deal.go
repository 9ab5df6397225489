/**
 * @description
 * This file defines the core domain models for the deal-service.
 * A Deal is the canonical in-process mirror of one escrow agreement held by
 * the on-chain ledger. The ledger is the source of truth: the service never
 * invents status transitions locally, it only reads the ledger record back
 * and normalizes it into this model.
 *
 * @notes
 * - Amounts are `int64` in the smallest settlement unit of the escrow token,
 *   which avoids floating-point inaccuracies with financial data.
 * - Timestamps coming off the ledger are epoch seconds and may arrive as
 *   JSON numbers or strings depending on the gateway; the coordinator
 *   normalizes both forms when mapping the raw record into a Deal.
 */

package domain

import (
	"fmt"
	"time"
)

// DealStatus is the canonical lifecycle state of a deal.
type DealStatus string

const (
	StatusPending       DealStatus = "PENDING"
	StatusActive        DealStatus = "ACTIVE"
	StatusPendingReview DealStatus = "PENDING_REVIEW"
	StatusDisputed      DealStatus = "DISPUTED"
	StatusCompleted     DealStatus = "COMPLETED"
	StatusCancelled     DealStatus = "CANCELLED"
)

// statusByCode is the closed mapping from the ledger's numeric status code.
// An unmapped code is a decode failure, never silently defaulted.
var statusByCode = map[int64]DealStatus{
	0: StatusPending,
	1: StatusActive,
	2: StatusPendingReview,
	3: StatusDisputed,
	4: StatusCompleted,
	5: StatusCancelled,
}

// StatusFromCode maps a raw ledger status code to its canonical status.
func StatusFromCode(code int64) (DealStatus, error) {
	status, ok := statusByCode[code]
	if !ok {
		return "", fmt.Errorf("unmapped ledger status code %d", code)
	}
	return status, nil
}

// Terminal reports whether the status is a terminal lifecycle state.
func (s DealStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Deal mirrors one escrow agreement as read back from the ledger.
type Deal struct {
	ID              string     `json:"id"`
	Brand           string     `json:"brand"`
	Creator         string     `json:"creator"`
	Amount          int64      `json:"amount"` // smallest settlement unit
	Deadline        int64      `json:"deadline"` // epoch seconds, content due
	BriefHash       string     `json:"brief_hash"`
	Status          DealStatus `json:"status"`
	ContentURL      *string    `json:"content_url,omitempty"`
	ReviewDeadline  *int64     `json:"review_deadline,omitempty"` // epoch seconds
	FundedAt        *int64     `json:"funded_at,omitempty"`
	SubmittedAt     *int64     `json:"submitted_at,omitempty"`
	DisputedAt      *int64     `json:"disputed_at,omitempty"`
	AcceptedDispute *bool      `json:"accepted_dispute,omitempty"`
	Exists          bool       `json:"exists"`
}

// DeadlineTime returns the content deadline as a time.Time.
func (d *Deal) DeadlineTime() time.Time {
	return time.Unix(d.Deadline, 0).UTC()
}

// ReviewDeadlineTime returns the review deadline, or the zero time when the
// deal has not reached PENDING_REVIEW yet.
func (d *Deal) ReviewDeadlineTime() time.Time {
	if d.ReviewDeadline == nil {
		return time.Time{}
	}
	return time.Unix(*d.ReviewDeadline, 0).UTC()
}

// Snapshot returns the enumerated audit-relevant fields of the deal as a flat
// map. The delta engine diffs two snapshots; keeping the field list explicit
// here avoids diffing over untyped dynamic state.
func (d *Deal) Snapshot() map[string]any {
	if d == nil {
		return nil
	}
	snap := map[string]any{
		"status":     string(d.Status),
		"amount":     d.Amount,
		"deadline":   d.Deadline,
		"brief_hash": d.BriefHash,
	}
	if d.ContentURL != nil {
		snap["content_url"] = *d.ContentURL
	}
	if d.ReviewDeadline != nil {
		snap["review_deadline"] = *d.ReviewDeadline
	}
	if d.FundedAt != nil {
		snap["funded_at"] = *d.FundedAt
	}
	if d.SubmittedAt != nil {
		snap["submitted_at"] = *d.SubmittedAt
	}
	if d.DisputedAt != nil {
		snap["disputed_at"] = *d.DisputedAt
	}
	if d.AcceptedDispute != nil {
		snap["accepted_dispute"] = *d.AcceptedDispute
	}
	return snap
}

// CreateDealRequest is the DTO for incoming deal creation API requests.
type CreateDealRequest struct {
	Creator   string `json:"creator"`
	Amount    int64  `json:"amount"`   // smallest settlement unit
	Deadline  int64  `json:"deadline"` // epoch seconds
	BriefHash string `json:"brief_hash"`
}

// SubmitContentRequest is the DTO for content submission API requests.
type SubmitContentRequest struct {
	ContentURL string `json:"content_url"`
}

// DisputeRequest is the DTO for dispute initiation API requests.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest is the DTO for dispute resolution API requests.
type ResolveDisputeRequest struct {
	Accept bool `json:"accept"`
}

// PlatformInfo carries the public platform parameters read off the ledger.
type PlatformInfo struct {
	FeeBps      int64  `json:"fee_bps"`
	TokenSymbol string `json:"token_symbol"`
	TokenName   string `json:"token_name"`
	Decimals    int64  `json:"decimals"`
}
