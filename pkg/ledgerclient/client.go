/**
 * @description
 * This package provides a client for the escrow ledger gateway, the HTTP
 * facade in front of the sponsorship escrow contract. It encapsulates the
 * logic for making authenticated requests, building request bodies, and
 * parsing responses.
 *
 * The gateway relays contract return values as-is, so numeric fields may
 * arrive as JSON numbers or strings depending on word size; responses are
 * decoded with UseNumber and normalized by the caller. Contract reverts come
 * back as a structured error whose detail carries the raw revert message.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the escrow ledger gateway.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new ledger gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RawDeal is the fixed-width deal tuple as relayed by the gateway. Numeric
// fields are `any` because the gateway serializes small integers as JSON
// numbers and 256-bit words as decimal strings; responses are decoded with
// UseNumber and the service normalizes both forms to integers.
type RawDeal struct {
	ID              string `json:"id"`
	Brand           string `json:"brand"`
	Creator         string `json:"creator"`
	Amount          any    `json:"amount"`
	Deadline        any    `json:"deadline"`
	BriefHash       string `json:"briefHash"`
	Status          any    `json:"status"`
	ContentURL      string `json:"contentUrl"`
	ReviewDeadline  any    `json:"reviewDeadline"`
	FundedAt        any    `json:"fundedAt"`
	SubmittedAt     any    `json:"submittedAt"`
	DisputedAt      any    `json:"disputedAt"`
	AcceptedDispute *bool  `json:"acceptedDispute"`
	Exists          bool   `json:"exists"`
}

// RawTokenMetadata carries the settlement token metadata tuple.
type RawTokenMetadata struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals any    `json:"decimals"`
}

// TxResponse is the transaction reference returned by every write method.
type TxResponse struct {
	Data struct {
		TxHash string `json:"txHash"`
		Status string `json:"status"`
	} `json:"data"`
}

// CreateDealParams is the payload for deal creation.
type CreateDealParams struct {
	DealID    string `json:"dealId"`
	Brand     string `json:"brand"`
	Creator   string `json:"creator"`
	Amount    int64  `json:"amount"`
	Deadline  int64  `json:"deadline"`
	BriefHash string `json:"briefHash"`
}

// RevertError is returned when the contract reverted the call. Raw holds the
// unprocessed revert message from the node.
type RevertError struct {
	Raw string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("ledger execution reverted: %s", e.Raw)
}

// RevertRaw returns the raw revert message for classification.
func (e *RevertError) RevertRaw() string { return e.Raw }

// ErrorResponse represents a non-revert error from the gateway.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Code   string `json:"code"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("ledger gateway error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown ledger gateway error"
}

const revertCode = "EXECUTION_REVERTED"

// CreateDeal asks the ledger to create a new escrow deal.
func (c *Client) CreateDeal(ctx context.Context, params CreateDealParams) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals", params)
}

// FundDeal locks the brand's funds into escrow.
func (c *Client) FundDeal(ctx context.Context, dealID string) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/fund", nil)
}

// SubmitContent records the creator's content submission on the ledger.
func (c *Client) SubmitContent(ctx context.Context, dealID, contentURL string) (string, error) {
	payload := map[string]string{"contentUrl": contentURL}
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/submit", payload)
}

// ApproveDeal releases escrowed funds to the creator.
func (c *Client) ApproveDeal(ctx context.Context, dealID string) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/approve", nil)
}

// InitiateDispute flags the deal as disputed.
func (c *Client) InitiateDispute(ctx context.Context, dealID, reason string) (string, error) {
	payload := map[string]string{"reason": reason}
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/dispute", payload)
}

// ResolveDispute settles a dispute; accept=true sides with the creator.
func (c *Client) ResolveDispute(ctx context.Context, dealID string, accept bool) (string, error) {
	payload := map[string]bool{"accept": accept}
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/resolve", payload)
}

// CancelDeal cancels an unfunded deal.
func (c *Client) CancelDeal(ctx context.Context, dealID string) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/cancel", nil)
}

// EmergencyCancelDeal force-cancels a funded deal through the emergency path.
func (c *Client) EmergencyCancelDeal(ctx context.Context, dealID string) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/emergency-cancel", nil)
}

// AutoReleasePayment releases funds after an elapsed review deadline.
func (c *Client) AutoReleasePayment(ctx context.Context, dealID string) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/auto-release", nil)
}

// AutoRefundAfterDeadline refunds the brand after a missed content deadline.
func (c *Client) AutoRefundAfterDeadline(ctx context.Context, dealID string) (string, error) {
	return c.doWrite(ctx, "/api/v1/deals/"+dealID+"/auto-refund", nil)
}

// GetDeal reads the raw deal tuple for one deal id.
func (c *Client) GetDeal(ctx context.Context, dealID string) (*RawDeal, error) {
	var response struct {
		Data RawDeal `json:"data"`
	}
	if err := c.doRead(ctx, "/api/v1/deals/"+dealID, &response); err != nil {
		return nil, err
	}
	return &response.Data, nil
}

// GetDeals reads all deals where address participates in the given role.
func (c *Client) GetDeals(ctx context.Context, address string, isBrand bool) ([]RawDeal, error) {
	role := "creator"
	if isBrand {
		role = "brand"
	}
	var response struct {
		Data []RawDeal `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/deals?address=%s&role=%s", address, role)
	if err := c.doRead(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// CanAutoRelease asks the contract whether the deal is currently eligible
// for automatic release.
func (c *Client) CanAutoRelease(ctx context.Context, dealID string) (bool, error) {
	var response struct {
		Data struct {
			Eligible bool `json:"eligible"`
		} `json:"data"`
	}
	if err := c.doRead(ctx, "/api/v1/deals/"+dealID+"/can-auto-release", &response); err != nil {
		return false, err
	}
	return response.Data.Eligible, nil
}

// PlatformFeeBps reads the platform fee in basis points.
func (c *Client) PlatformFeeBps(ctx context.Context) (int64, error) {
	var response struct {
		Data struct {
			FeeBps any `json:"feeBps"`
		} `json:"data"`
	}
	if err := c.doRead(ctx, "/api/v1/platform/fee", &response); err != nil {
		return 0, err
	}
	feeBps, err := ToInt64(response.Data.FeeBps)
	if err != nil {
		return 0, fmt.Errorf("failed to decode platform fee: %w", err)
	}
	return feeBps, nil
}

// ToInt64 normalizes a gateway-relayed numeric value to an integer. The
// gateway emits JSON numbers for word-sized values and decimal strings for
// 256-bit words; nil means the field was absent from the tuple.
func ToInt64(v any) (int64, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		return value.Int64()
	case string:
		if strings.TrimSpace(value) == "" {
			return 0, nil
		}
		return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	case float64:
		return int64(value), nil
	case int64:
		return value, nil
	case int:
		return int64(value), nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// TokenMetadata reads the settlement token metadata.
func (c *Client) TokenMetadata(ctx context.Context) (*RawTokenMetadata, error) {
	var response struct {
		Data RawTokenMetadata `json:"data"`
	}
	if err := c.doRead(ctx, "/api/v1/platform/token", &response); err != nil {
		return nil, err
	}
	return &response.Data, nil
}

// doWrite executes a state-changing gateway call and returns the transaction
// reference.
func (c *Client) doWrite(ctx context.Context, path string, payload any) (string, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal ledger request: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to create ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ledger-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute ledger request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ledger response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.decodeError(path, resp.StatusCode, bodyBytes)
	}

	var txResp TxResponse
	if err := json.Unmarshal(bodyBytes, &txResp); err != nil {
		return "", fmt.Errorf("failed to decode ledger tx response: %w", err)
	}
	return txResp.Data.TxHash, nil
}

// doRead executes a view call and decodes the response with UseNumber so
// numeric tuple fields survive as json.Number.
func (c *Client) doRead(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ledger-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute ledger request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ledger response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(path, resp.StatusCode, bodyBytes)
	}

	decoder := json.NewDecoder(bytes.NewReader(bodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(path string, status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		log.Printf("level=warn component=ledger_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, status)
		return fmt.Errorf("failed to decode ledger error response (status %d)", status)
	}
	if len(errResp.Errors) > 0 && errResp.Errors[0].Code == revertCode {
		return &RevertError{Raw: errResp.Errors[0].Detail}
	}
	log.Printf("level=warn component=ledger_client path=%s status=%d title=%q detail=%q", path, status, firstErrorTitle(errResp), firstErrorDetail(errResp))
	return &errResp
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
