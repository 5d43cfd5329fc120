// Package httpbroker is a brokerage adapter that speaks to a brokerage
// microservice over HTTP, the same envelope-response shape the
// engine's other brokerage integrations use.
package httpbroker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trigger-engine/internal/broker"
	"github.com/aristath/trigger-engine/internal/engineerr"
)

// serviceResponse is the standard envelope every endpoint returns.
type serviceResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

// Adapter calls a brokerage HTTP microservice to place and manage orders
// for one broker name.
type Adapter struct {
	baseURL    string
	brokerName string
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
	token    string
}

// New builds an adapter targeting the microservice at baseURL.
func New(baseURL, brokerName string, log zerolog.Logger) *Adapter {
	return &Adapter{
		baseURL:    baseURL,
		brokerName: brokerName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("broker", brokerName).Logger(),
	}
}

func (a *Adapter) post(ctx context.Context, endpoint string, request, out any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", engineerr.ErrBrokerUnavailable, err)
	}

	var env serviceResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decoding envelope: %v", engineerr.ErrBrokerUnavailable, err)
	}
	if !env.Success {
		msg := "unknown broker error"
		if env.Error != nil {
			msg = *env.Error
		}
		return fmt.Errorf("%w: %s", engineerr.ErrBrokerRejected, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %v", engineerr.ErrBrokerUnavailable, err)
	}
	return nil
}

type loginRequest struct {
	Credentials map[string]string `json:"credentials"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (a *Adapter) Login(ctx context.Context, credentials map[string]string) error {
	var resp loginResponse
	if err := a.post(ctx, "/api/session/login", loginRequest{Credentials: credentials}, &resp); err != nil {
		if errors.Is(err, engineerr.ErrBrokerRejected) {
			return fmt.Errorf("%w: login refused: %v", engineerr.ErrBrokerUnavailable, err)
		}
		return err
	}
	a.mu.Lock()
	a.token = resp.Token
	a.loggedIn = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	loggedIn := a.loggedIn
	a.mu.Unlock()
	if !loggedIn {
		return nil
	}
	// post takes a.mu itself to read the token, so it must run unlocked.
	err := a.post(ctx, "/api/session/logout", struct{}{}, nil)
	a.mu.Lock()
	a.loggedIn = false
	a.token = ""
	a.mu.Unlock()
	return err
}

func (a *Adapter) IsLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

type placeOrderRequest struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Kind       string   `json:"kind"`
	Quantity   int      `json:"quantity"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
}

type placeOrderResponse struct {
	OrderID string  `json:"orderId"`
	Price   float64 `json:"price"`
}

func (a *Adapter) place(ctx context.Context, symbol, side, kind string, quantity int, limitPrice *float64) (*broker.OrderResult, error) {
	var resp placeOrderResponse
	req := placeOrderRequest{Symbol: symbol, Side: side, Kind: kind, Quantity: quantity, LimitPrice: limitPrice}
	if err := a.post(ctx, "/api/trading/place-order", req, &resp); err != nil {
		return nil, err
	}
	return &broker.OrderResult{
		BrokerOrderRef: resp.OrderID,
		Price:          resp.Price,
		PlacedAt:       time.Now(),
	}, nil
}

func (a *Adapter) PlaceLimitBuy(ctx context.Context, symbol string, quantity int, limitPrice float64) (*broker.OrderResult, error) {
	return a.place(ctx, symbol, "buy", "limit", quantity, &limitPrice)
}

func (a *Adapter) PlaceLimitSell(ctx context.Context, symbol string, quantity int, limitPrice float64) (*broker.OrderResult, error) {
	return a.place(ctx, symbol, "sell", "limit", quantity, &limitPrice)
}

func (a *Adapter) PlaceMarketBuy(ctx context.Context, symbol string, quantity int) (*broker.OrderResult, error) {
	return a.place(ctx, symbol, "buy", "market", quantity, nil)
}

func (a *Adapter) PlaceMarketSell(ctx context.Context, symbol string, quantity int) (*broker.OrderResult, error) {
	return a.place(ctx, symbol, "sell", "market", quantity, nil)
}
