// Package pay0 is a client for the Pay0 payment gateway: creating orders
// and verifying order status for webhook confirmation. The gateway speaks
// form-encoded POST requests.
package pay0

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Service struct {
	apiURL     string
	userToken  string
	httpClient *http.Client
	logger     zerolog.Logger
}

func (s *Service) LoggerComponent() string {
	return "Pay0.Service"
}

func NewService(apiURL, userToken string, opts ...ServiceOption) (*Service, error) {
	if apiURL == "" {
		return nil, errors.New("pay0: empty api url")
	}

	c := &Service{
		apiURL:     apiURL,
		userToken:  userToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.Logger,
	}

	for _, o := range opts {
		o(c)
	}

	c.logger = c.logger.With().Str("component", c.LoggerComponent()).Logger()

	return c, nil
}

type ServiceOption func(*Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithHTTPClient(hc *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = hc
	}
}

type RemoteError struct {
	ResponseBody string
	StatusCode   int
}

func NewRemoteError(responseBody string, statusCode int) *RemoteError {
	return &RemoteError{ResponseBody: responseBody, StatusCode: statusCode}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("pay0: remote error %d: %s", e.StatusCode, e.ResponseBody)
}

// CreateOrder registers an order with the gateway and returns the URL the
// customer pays through.
func (s *Service) CreateOrder(ctx context.Context, orderID, mobile, amount, redirectURL, remark1, remark2 string) (*Order, error) {
	l := s.logger.With().
		Str("method", "CreateOrder").
		Str("order_id", orderID).
		Logger()

	out := &createOrderResponse{}
	err := s.genericCall(ctx, "/create-order", url.Values{
		"customer_mobile": {mobile},
		"customer_name":   {"BrandOtp User"},
		"user_token":      {s.userToken},
		"amount":          {amount},
		"order_id":        {orderID},
		"redirect_url":    {redirectURL},
		"remark1":         {remark1},
		"remark2":         {remark2},
	}, out)
	if err != nil {
		return nil, err
	}

	if !out.Status {
		l.Debug().Str("message", out.Message).Msg("Order rejected")
		return nil, NewRemoteError(out.Message, http.StatusOK)
	}

	l.Debug().Str("payment_url", out.Result.PaymentURL).Msg("Order created")

	return &Order{
		OrderID:    out.Result.OrderID,
		PaymentURL: out.Result.PaymentURL,
	}, nil
}

// CheckStatus fetches the gateway-side status of an order. The webhook
// handler re-verifies with this call instead of trusting the webhook body.
func (s *Service) CheckStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	out := &orderStatusResponse{}
	err := s.genericCall(ctx, "/check-order-status", url.Values{
		"user_token": {s.userToken},
		"order_id":   {orderID},
	}, out)
	if err != nil {
		return nil, err
	}

	if !out.Status {
		return nil, NewRemoteError(out.Message, http.StatusOK)
	}

	return &OrderStatus{
		OrderID:   out.Result.OrderID,
		TxnStatus: out.Result.TxnStatus,
		Amount:    out.Result.Amount.String(),
	}, nil
}

func (s *Service) genericCall(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	l := s.logger.With().Str("endpoint", endpoint).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		l.Error().Err(err).Msg("Call failed")
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("body read: %w", err)
	}

	if res.StatusCode >= 400 {
		l.Error().Str("http_body", string(body)).Msg("Gateway responded with error")
		return NewRemoteError(string(body), res.StatusCode)
	}

	if len(body) == 0 {
		return NewRemoteError("empty response", res.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}
