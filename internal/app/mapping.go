/**
 * @description
 * Normalization of raw ledger deal tuples into the canonical domain model.
 * The ledger gateway serializes numerics inconsistently (JSON numbers on
 * some paths, decimal strings on others), so every numeric field runs
 * through ledgerclient.ToInt64. A malformed numeric or an unmapped status
 * code is a fatal decode error, never a silent default.
 */

package app

import (
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/apperr"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/ledgerclient"
)

// dealFromRaw maps a raw ledger record into a domain.Deal. Zero timestamps
// mean "not reached yet" and map to nil; an empty content URL maps to nil.
func dealFromRaw(raw *ledgerclient.RawDeal) (*domain.Deal, error) {
	if raw == nil {
		return nil, apperr.Decode("ledger returned an empty deal record", nil)
	}

	amount, err := ledgerclient.ToInt64(raw.Amount)
	if err != nil {
		return nil, apperr.Decode("malformed deal amount", err)
	}
	deadline, err := ledgerclient.ToInt64(raw.Deadline)
	if err != nil {
		return nil, apperr.Decode("malformed deal deadline", err)
	}
	statusCode, err := ledgerclient.ToInt64(raw.Status)
	if err != nil {
		return nil, apperr.Decode("malformed deal status code", err)
	}
	status, err := domain.StatusFromCode(statusCode)
	if err != nil {
		return nil, apperr.Decode(err.Error(), err)
	}

	deal := &domain.Deal{
		ID:              raw.ID,
		Brand:           raw.Brand,
		Creator:         raw.Creator,
		Amount:          amount,
		Deadline:        deadline,
		BriefHash:       raw.BriefHash,
		Status:          status,
		AcceptedDispute: raw.AcceptedDispute,
		Exists:          raw.Exists,
	}
	if raw.ContentURL != "" {
		url := raw.ContentURL
		deal.ContentURL = &url
	}
	if deal.ReviewDeadline, err = optionalEpoch(raw.ReviewDeadline, "review deadline"); err != nil {
		return nil, err
	}
	if deal.FundedAt, err = optionalEpoch(raw.FundedAt, "funded-at timestamp"); err != nil {
		return nil, err
	}
	if deal.SubmittedAt, err = optionalEpoch(raw.SubmittedAt, "submitted-at timestamp"); err != nil {
		return nil, err
	}
	if deal.DisputedAt, err = optionalEpoch(raw.DisputedAt, "disputed-at timestamp"); err != nil {
		return nil, err
	}
	return deal, nil
}

// optionalEpoch normalizes a nullable epoch-seconds field. The ledger uses
// zero for "not set".
func optionalEpoch(v any, field string) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	epoch, err := ledgerclient.ToInt64(v)
	if err != nil {
		return nil, apperr.Decode("malformed deal "+field, err)
	}
	if epoch == 0 {
		return nil, nil
	}
	return &epoch, nil
}
