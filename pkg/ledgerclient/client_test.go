package ledgerclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, "test-key")
	return client, server
}

func TestDoWriteReturnsTxHash(t *testing.T) {
	var gotKey, gotPath string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-ledger-key")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"txHash":"0xabc123","status":"confirmed"}}`))
	})
	defer server.Close()

	txHash, err := client.FundDeal(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("FundDeal returned error: %v", err)
	}
	if txHash != "0xabc123" {
		t.Fatalf("unexpected tx hash: %q", txHash)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotPath != "/api/v1/deals/deal-1/fund" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestDoWriteClassifiesReverts(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"title":"Execution reverted","detail":"reverted with the following reason: Deal not funded\n","code":"EXECUTION_REVERTED","status":"400"}]}`))
	})
	defer server.Close()

	_, err := client.ApproveDeal(context.Background(), "deal-1")
	var revert *RevertError
	if !errors.As(err, &revert) {
		t.Fatalf("expected RevertError, got %v", err)
	}
	if revert.RevertRaw() != "reverted with the following reason: Deal not funded\n" {
		t.Fatalf("unexpected raw revert: %q", revert.RevertRaw())
	}
}

func TestDoWriteNonRevertErrorsKeepGatewayShape(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"errors":[{"title":"Node unavailable","detail":"rpc timeout","code":"NODE_ERROR","status":"502"}]}`))
	})
	defer server.Close()

	_, err := client.CancelDeal(context.Background(), "deal-1")
	var gatewayErr *ErrorResponse
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected ErrorResponse, got %v", err)
	}
	var revert *RevertError
	if errors.As(err, &revert) {
		t.Fatal("non-revert error must not classify as revert")
	}
}

func TestGetDealDecodesNumbersAsJSONNumber(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"deal-1","brand":"0xb","creator":"0xc","amount":"5000000000000000000","deadline":1900000000,"briefHash":"0xhash","status":1,"exists":true}}`))
	})
	defer server.Close()

	deal, err := client.GetDeal(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("GetDeal returned error: %v", err)
	}

	// 256-bit words arrive as strings, small fields as json.Number; both must
	// normalize to integers.
	amount, err := ToInt64(deal.Amount)
	if err != nil {
		t.Fatalf("amount normalization failed: %v", err)
	}
	if amount != 5_000_000_000_000_000_000 {
		t.Fatalf("unexpected amount: %d", amount)
	}
	if _, ok := deal.Deadline.(json.Number); !ok {
		t.Fatalf("expected deadline decoded as json.Number, got %T", deal.Deadline)
	}
	deadline, err := ToInt64(deal.Deadline)
	if err != nil || deadline != 1_900_000_000 {
		t.Fatalf("unexpected deadline: %d err=%v", deadline, err)
	}
}

func TestGetDealsSendsRoleQuery(t *testing.T) {
	var gotQuery string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	})
	defer server.Close()

	if _, err := client.GetDeals(context.Background(), "0xb", true); err != nil {
		t.Fatalf("GetDeals returned error: %v", err)
	}
	if gotQuery != "address=0xb&role=brand" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}

	if _, err := client.GetDeals(context.Background(), "0xc", false); err != nil {
		t.Fatalf("GetDeals returned error: %v", err)
	}
	if gotQuery != "address=0xc&role=creator" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
}

func TestCanAutoRelease(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"eligible":true}}`))
	})
	defer server.Close()

	eligible, err := client.CanAutoRelease(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("CanAutoRelease returned error: %v", err)
	}
	if !eligible {
		t.Fatal("expected eligible true")
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{"nil", nil, 0, false},
		{"json number", json.Number("42"), 42, false},
		{"decimal string", "5000", 5000, false},
		{"padded string", "  77 ", 77, false},
		{"empty string", "", 0, false},
		{"float", float64(9), 9, false},
		{"int64", int64(3), 3, false},
		{"int", 4, 4, false},
		{"garbage string", "not-a-number", 0, true},
		{"unsupported type", true, 0, true},
	}

	for _, tc := range cases {
		got, err := ToInt64(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}
