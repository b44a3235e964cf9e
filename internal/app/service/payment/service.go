// Package payment handles Pay0 add-money orders and their webhook
// confirmation. The webhook is acknowledged immediately; crediting runs as
// a pool job that re-verifies the order with the gateway and claims the
// pending order exactly once before touching the wallet.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/service/wallet"
	"brandotp/internal/app/service/worker"
	"brandotp/internal/app/storage"
	"brandotp/pkg/pay0"
)

const webhookTimeout = 30 * time.Second

var (
	minAmount = decimal.NewFromInt(50)
	maxAmount = decimal.NewFromInt(5000)
)

// Gateway creates external payment orders and reports their settled status.
type Gateway interface {
	CreateOrder(ctx context.Context, orderID, mobile, amount, redirectURL, remark1, remark2 string) (*pay0.Order, error)
	CheckStatus(ctx context.Context, orderID string) (*pay0.OrderStatus, error)
}

type Service struct {
	orders      storage.PaymentOrderRepository
	wallet      *wallet.Service
	gateway     Gateway
	pool        *worker.Pool
	redirectURL string
}

func (s *Service) LoggerComponent() string {
	return "Payment.Service"
}

func New(orders storage.PaymentOrderRepository, w *wallet.Service, gw Gateway, pool *worker.Pool, redirectURL string) *Service {
	return &Service{
		orders:      orders,
		wallet:      w,
		gateway:     gw,
		pool:        pool,
		redirectURL: redirectURL,
	}
}

// CreateResult is a created order with the gateway URL the customer pays
// through.
type CreateResult struct {
	Order      *model.PaymentOrder
	PaymentURL string
}

// CreateOrder registers a Pay0 order for the amount and persists it pending.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, mobile string, amount decimal.Decimal, remark1, remark2 string) (*CreateResult, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	l := logger.Get(ctx, s)

	orderID := "BRANDOTP_" + strings.ToUpper(xid.New().String())

	redirect := s.redirectURL + "?order_id=" + orderID
	gwOrder, err := s.gateway.CreateOrder(ctx, orderID, mobile, amount.StringFixed(2), redirect, remark1, remark2)
	if err != nil {
		l.Debug().Err(err).Msg("Gateway order failed")
		return nil, fmt.Errorf("%w: %s", apperr.ErrUpstream, err)
	}

	m, err := s.orders.Create(ctx, &model.PaymentOrder{
		UserID:        userID,
		OrderID:       orderID,
		Amount:        amount,
		MobileNumber:  mobile,
		PaymentMethod: "pay0",
		Status:        model.PaymentStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("order persist: %w", err)
	}

	l.Info().Str("order_id", orderID).Str("amount", amount.String()).Msg("Payment order created")

	return &CreateResult{Order: m, PaymentURL: gwOrder.PaymentURL}, nil
}

// ManualCredit adds money without the gateway. Used as the add-money
// fallback and by the admin credit route.
func (s *Service) ManualCredit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	return s.wallet.Credit(ctx, userID, amount, reason)
}

// HandleWebhook acknowledges a gateway callback by queueing the credit job.
// The caller can respond to the gateway immediately.
func (s *Service) HandleWebhook(ctx context.Context, orderID, status string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order_id missing", apperr.ErrInvalidInput)
	}

	l := logger.Get(ctx, s)
	l.Info().Str("order_id", orderID).Str("status", status).Msg("Webhook received")

	s.pool.Run(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		return s.ProcessWebhook(ctx, orderID, status)
	})

	return nil
}

// ProcessWebhook settles an order: verify with the gateway, claim the
// pending order, credit the wallet. Claiming is a conditional transition,
// so a replayed webhook can never credit twice.
func (s *Service) ProcessWebhook(ctx context.Context, orderID, status string) error {
	l := logger.Get(ctx, s).With().Str("order_id", orderID).Logger()

	if !successStatus(status) {
		if _, err := s.orders.MarkFailed(ctx, orderID); err != nil && !errors.Is(err, apperr.ErrInvalidState) {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}

	// never trust the webhook body alone
	verified, err := s.gateway.CheckStatus(ctx, orderID)
	if err != nil {
		// status check is an idempotent read, worth one retry
		return fmt.Errorf("status check: %w: %s", worker.ErrRetryable, err)
	}

	if !verified.Paid() {
		l.Info().Str("txn_status", verified.TxnStatus).Msg("Order not settled, no credit")
		if _, err := s.orders.MarkFailed(ctx, orderID); err != nil && !errors.Is(err, apperr.ErrInvalidState) {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}

	m, err := s.orders.MarkCompleted(ctx, orderID)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidState) {
			// already settled by an earlier delivery
			l.Debug().Msg("Order already processed")
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}

	if _, err := s.wallet.Credit(ctx, m.UserID, m.Amount, "Pay0 payment success - Order: "+orderID); err != nil {
		l.Error().Err(err).Msg("Wallet credit failed for settled order")
		// give the claim back so a retry or webhook replay can settle it
		if _, rerr := s.orders.Reopen(ctx, orderID); rerr != nil {
			l.Error().Err(rerr).Msg("Order reopen failed, settlement stuck")
			return fmt.Errorf("credit: %w", err)
		}
		return fmt.Errorf("credit: %w: %s", worker.ErrRetryable, err)
	}

	l.Info().Str("amount", m.Amount.String()).Msg("Wallet credited")

	return nil
}

// Order returns a payment order by its external id.
func (s *Service) Order(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	return s.orders.ReadByOrderID(ctx, orderID)
}

func validAmount(amount decimal.Decimal) error {
	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", apperr.ErrInvalidInput, minAmount)
	}
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", apperr.ErrInvalidInput, maxAmount)
	}
	return nil
}

func successStatus(status string) bool {
	switch strings.ToLower(status) {
	case "success", "completed", "paid":
		return true
	}
	return false
}
