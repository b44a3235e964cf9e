// Package smsman is a client for the SMS-man control API: buying a virtual
// number, polling for the delivered SMS code and releasing the number.
package smsman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

var (
	// ErrNoNumbers means the provider has no free numbers for the
	// application/country pair right now.
	ErrNoNumbers = errors.New("smsman: no numbers available")
	// ErrInvalidApplication means the application id is unknown upstream.
	ErrInvalidApplication = errors.New("smsman: invalid application")
)

type Service struct {
	apiURL     string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

func (s *Service) LoggerComponent() string {
	return "SMSMan.Service"
}

func NewService(apiURL, token string, opts ...ServiceOption) (*Service, error) {
	if apiURL == "" {
		return nil, errors.New("smsman: empty api url")
	}

	c := &Service{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     log.Logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "smsman",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

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
	return fmt.Sprintf("smsman: remote error %d: %s", e.StatusCode, e.ResponseBody)
}

// Buy obtains a virtual number for the application in the given country.
func (s *Service) Buy(ctx context.Context, applicationID, countryID int) (*Number, error) {
	l := s.logger.With().
		Str("method", "Buy").
		Int("application_id", applicationID).
		Int("country_id", countryID).
		Logger()

	out := &GetNumberResponse{}
	err := s.genericCall(ctx, "/get-number", url.Values{
		"application_id": {strconv.Itoa(applicationID)},
		"country_id":     {strconv.Itoa(countryID)},
	}, out)
	if err != nil {
		return nil, err
	}

	if out.ErrorCode != "" {
		l.Debug().Str("error_code", out.ErrorCode).Str("error_msg", out.ErrorMsg).Msg("Buy rejected")
		switch out.ErrorCode {
		case "no_numbers":
			return nil, ErrNoNumbers
		case "wrong_application_id", "wrong_application":
			return nil, ErrInvalidApplication
		}
		return nil, NewRemoteError(out.ErrorMsg, http.StatusOK)
	}

	if out.Number == "" || out.RequestID.String() == "" {
		return nil, NewRemoteError("empty number response", http.StatusOK)
	}

	l.Debug().Str("request_id", out.RequestID.String()).Msg("Number obtained")

	return &Number{
		RequestID: out.RequestID.String(),
		Number:    out.Number,
	}, nil
}

// PollCode checks whether an SMS has arrived for the purchased number.
func (s *Service) PollCode(ctx context.Context, requestID string) (*SMS, error) {
	l := s.logger.With().
		Str("method", "PollCode").
		Str("request_id", requestID).
		Logger()

	out := &GetSMSResponse{}
	err := s.genericCall(ctx, "/get-sms", url.Values{
		"request_id": {requestID},
	}, out)
	if err != nil {
		return nil, err
	}

	if out.SMSCode != "" {
		l.Debug().Msg("Code received")
		return &SMS{
			Code:     out.SMSCode,
			Text:     out.SMSText,
			Sender:   out.Sender,
			Received: true,
		}, nil
	}

	// wait_sms and an empty body both mean no message yet
	return &SMS{Received: false}, nil
}

// Cancel releases the number back to the provider.
func (s *Service) Cancel(ctx context.Context, requestID string) error {
	out := &SetStatusResponse{}
	err := s.genericCall(ctx, "/set-status", url.Values{
		"request_id": {requestID},
		"status":     {"reject"},
	}, out)
	if err != nil {
		return err
	}

	if out.ErrorCode != "" {
		return NewRemoteError(out.ErrorMsg, http.StatusOK)
	}

	return nil
}

func (s *Service) genericCall(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	l := s.logger.With().Str("endpoint", endpoint).Logger()

	params.Set("token", s.token)
	fullURL := s.apiURL + endpoint + "?" + params.Encode()

	res, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Add("Accept", "application/json")

		res, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		if res.StatusCode >= 400 {
			body, _ := io.ReadAll(res.Body)
			_ = res.Body.Close()
			return nil, NewRemoteError(string(body), res.StatusCode)
		}

		return res, nil
	})
	if err != nil {
		l.Error().Err(err).Msg("Provider call failed")
		return err
	}

	httpRes := res.(*http.Response)
	defer func() {
		_ = httpRes.Body.Close()
	}()

	body, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return fmt.Errorf("body read: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}
