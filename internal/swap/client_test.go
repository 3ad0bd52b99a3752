package swap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(conf.SwapConfig{BaseURL: srv.URL, Secret: "s3cret"}, zap.NewNop()), srv
}

func TestQuote(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quotes" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-sideshift-secret") != "s3cret" {
			t.Error("secret header not sent")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["depositMethodId"] != "btc" {
			t.Errorf("unexpected depositMethodId %q", body["depositMethodId"])
		}
		if body["settleMethodId"] != "usdc-polygon" {
			t.Errorf("unexpected settleMethodId %q", body["settleMethodId"])
		}
		w.Write([]byte(`{"id":"q-1","depositAmount":"0.001000","settleAmount":"42.50","expiresAt":"2026-01-01T00:00:00Z"}`))
	})

	quote, err := client.Quote(context.Background(), "BTC", "USDC", "polygon", "0.001")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.ID != "q-1" || quote.SettleAmount != "42.50" {
		t.Errorf("unexpected quote %+v", quote)
	}
}

func TestCreateFixedOrderFlatShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ord-1","status":"waiting","depositAddress":"bc1qtest","depositAmount":"0.001","settleAmount":"42.50","expiresAt":"soon"}`))
	})

	order, err := client.CreateFixedOrder(context.Background(), "q-1", "BTC", "USDC", "polygon", "0xabc")
	if err != nil {
		t.Fatalf("CreateFixedOrder failed: %v", err)
	}
	if order.ID != "ord-1" || order.DepositAddress != "bc1qtest" {
		t.Errorf("unexpected order %+v", order)
	}
}

func TestGetOrderNestedShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shifts/ord-2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"ord-2","status":"settled","deposit":{"address":"bc1qnested","amount":"0.002"},"settle":{"amount":"85.00"}}`))
	})

	order, err := client.GetOrder(context.Background(), "ord-2")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if order.DepositAddress != "bc1qnested" {
		t.Errorf("nested deposit address not parsed, got %q", order.DepositAddress)
	}
	if order.SettleAmount != "85.00" {
		t.Errorf("nested settle amount not parsed, got %q", order.SettleAmount)
	}
	if order.Status != "settled" {
		t.Errorf("unexpected status %q", order.Status)
	}
}

func TestGetOrderProviderError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"upstream down"}}`))
	})

	if _, err := client.GetOrder(context.Background(), "ord-3"); err == nil {
		t.Fatal("expected error on provider failure")
	}
}

func TestMethodIDs(t *testing.T) {
	if got := depositMethodID("BTC"); got != "btc" {
		t.Errorf("depositMethodID(BTC) = %q", got)
	}
	if got := depositMethodID("doge"); got != "doge" {
		t.Errorf("unmapped asset should lowercase, got %q", got)
	}
	if got := settleMethodID("USDC", "Polygon"); got != "usdc-polygon" {
		t.Errorf("settleMethodID = %q", got)
	}
}
