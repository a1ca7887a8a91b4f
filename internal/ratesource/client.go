// Package ratesource предоставляет клиент для внешнего сервиса администрирования, в котором
// хранятся текущие ставки комиссии партнёров.
package ratesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/commission"
)

// ErrRateNotFound возвращается, если сервис ставок не знает партнёра.
var ErrRateNotFound = errors.New("commission rate not found")

// RateLimitedError возвращается на ответ 429 и содержит рекомендованную паузу.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate source throttled, retry after %s", e.RetryAfter)
}

// Client инкапсулирует HTTP-взаимодействие с сервисом ставок.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// PartnerRate описывает ответ сервиса ставок по одному партнёру.
type PartnerRate struct {
	PartnerID string          `json:"partnerId"`
	Rate      decimal.Decimal `json:"rate"`
}

// NewClient создаёт HTTP-клиент сервиса ставок по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetCommissionRate запрашивает текущую ставку комиссии партнёра в процентах.
func (c *Client) GetCommissionRate(ctx context.Context, partnerID string) (decimal.Decimal, error) {
	if c == nil || c.baseURL == "" {
		return decimal.Zero, fmt.Errorf("rate source client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	u := fmt.Sprintf("%s/api/partners/%s/commission-rate", base, url.PathEscape(partnerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return decimal.Zero, fmt.Errorf("%w: partner %s", ErrRateNotFound, partnerID)
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return decimal.Zero, &RateLimitedError{RetryAfter: retryAfter}
	default:
		return decimal.Zero, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result PartnerRate
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}

	if result.PartnerID != "" && result.PartnerID != partnerID {
		return decimal.Zero, fmt.Errorf("rate source answered for partner %s, want %s", result.PartnerID, partnerID)
	}
	if err := commission.ValidateRate(result.Rate); err != nil {
		return decimal.Zero, err
	}

	return result.Rate, nil
}
