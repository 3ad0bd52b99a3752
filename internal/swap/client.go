// Package swap is the client for the cross-chain swap provider (a
// SideShift-v2 shaped API). It only creates fixed-rate orders and reads
// their status; settlement detection belongs to the payment reconciler.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
)

// assetMethods maps display asset symbols to the provider's method ids.
var assetMethods = map[string]string{
	"BTC":  "btc",
	"ETH":  "eth",
	"SOL":  "sol",
	"BNB":  "bnb",
	"LTC":  "ltc",
	"USDC": "usdc",
	"USDT": "usdt",
}

type Quote struct {
	ID            string
	DepositAmount string
	SettleAmount  string
	ExpiresAt     string
}

// Order is the provider's view of a shift. Status is the provider's raw
// status string; the reconciler collapses it to the local enum.
type Order struct {
	ID             string
	Status         string
	DepositAddress string
	DepositAmount  string
	SettleAmount   string
	ExpiresAt      string
}

type Client struct {
	cfg        conf.SwapConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg conf.SwapConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Quote obtains a fixed-rate quote for converting amount of the deposit
// asset into the settle asset on the given network.
func (c *Client) Quote(ctx context.Context, depositAsset, settleAsset, settleNetwork, amount string) (*Quote, error) {
	amt, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	body := map[string]string{
		"depositMethodId": depositMethodID(depositAsset),
		"settleMethodId":  settleMethodID(settleAsset, settleNetwork),
		"depositAmount":   strconv.FormatFloat(amt, 'f', 6, 64),
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/quotes", body)
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		return nil, fmt.Errorf("quote response missing id: %s", data)
	}
	return &Quote{
		ID:            id,
		DepositAmount: gjson.GetBytes(data, "depositAmount").String(),
		SettleAmount:  gjson.GetBytes(data, "settleAmount").String(),
		ExpiresAt:     gjson.GetBytes(data, "expiresAt").String(),
	}, nil
}

// CreateFixedOrder turns a quote into a fixed-rate order settling to the
// given address.
func (c *Client) CreateFixedOrder(ctx context.Context, quoteID, depositAsset, settleAsset, settleNetwork, settleAddress string) (*Order, error) {
	body := map[string]string{
		"quoteId":         quoteID,
		"depositMethodId": depositMethodID(depositAsset),
		"settleMethodId":  settleMethodID(settleAsset, settleNetwork),
		"settleAddress":   settleAddress,
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/shifts/fixed", body)
	if err != nil {
		return nil, err
	}

	order := parseOrder(data)
	if order.ID == "" {
		return nil, fmt.Errorf("order response missing id: %s", data)
	}
	return order, nil
}

// GetOrder fetches the current provider-side state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/shifts/"+orderID, nil)
	if err != nil {
		return nil, err
	}

	order := parseOrder(data)
	if order.ID == "" {
		order.ID = orderID
	}
	return order, nil
}

// parseOrder tolerates both the flat and the nested response shapes the
// provider has shipped (depositAddress vs deposit.address).
func parseOrder(data []byte) *Order {
	pick := func(paths ...string) string {
		for _, p := range paths {
			if v := gjson.GetBytes(data, p); v.Exists() {
				return v.String()
			}
		}
		return ""
	}

	return &Order{
		ID:             pick("id"),
		Status:         pick("status"),
		DepositAddress: pick("depositAddress", "deposit.address"),
		DepositAmount:  pick("depositAmount", "deposit.amount"),
		SettleAmount:   pick("settleAmount", "settle.amount"),
		ExpiresAt:      pick("expiresAt", "expires"),
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := c.cfg.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Secret != "" {
		req.Header.Set("x-sideshift-secret", c.cfg.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("swap provider request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := gjson.GetBytes(respData, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(respData))
		}
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, msg)
	}
	return respData, nil
}

func depositMethodID(asset string) string {
	if id, ok := assetMethods[strings.ToUpper(asset)]; ok {
		return id
	}
	return strings.ToLower(asset)
}

func settleMethodID(asset, network string) string {
	return depositMethodID(asset) + "-" + strings.ToLower(network)
}
