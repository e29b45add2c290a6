package membership

import (
	"context"
	"encoding/json"
	"fmt"

	"cesworld/pkg/errutil"
	"cesworld/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	OrderStatusSuccess  = "success"
	OrderStatusRefunded = "refunded"
)

// TransactionCompletedPayload is published by the order service.
type TransactionCompletedPayload struct {
	UserID  string          `json:"user_id"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Points  int64           `json:"points"`
	Status  string          `json:"status"`
}

type Consumer struct {
	service *Service
}

func NewConsumer(s *Service) *Consumer {
	return &Consumer{service: s}
}

func (c *Consumer) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.TransactionCompleted, c.HandleTransactionCompleted)
}

// HandleTransactionCompleted books settled orders as purchases and refunded
// orders as refunds. Redelivered events are dropped by the order reference.
func (c *Consumer) HandleTransactionCompleted(ctx context.Context, t *asynq.Task) error {
	var payload TransactionCompletedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := logger(ctx).With(
		zap.String("task_type", t.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("order_id", payload.OrderID),
		zap.String("status", payload.Status),
	)

	var typ TransactionType
	switch payload.Status {
	case OrderStatusSuccess:
		typ = TypePurchase
	case OrderStatusRefunded:
		typ = TypeRefund
	default:
		zapLog.Info("ignoring order event")
		return nil
	}

	if payload.UserID == "" || payload.OrderID == "" {
		zapLog.Warn("order event without user or order id")
		return fmt.Errorf("missing user_id or order_id: %w", asynq.SkipRetry)
	}

	_, txn, err := c.service.ApplyTransaction(ctx, &Member{UserID: payload.UserID}, TransactionRequest{
		Type:        typ,
		Amount:      payload.Amount,
		Points:      payload.Points,
		Description: fmt.Sprintf("Order %s %s", payload.OrderID, payload.Status),
		OrderID:     payload.OrderID,
		Metadata:    map[string]any{"source": taskname.TransactionCompleted},
	})
	switch {
	case err == nil:
		zapLog.Info("order event applied", zap.String("transaction_id", txn.ID))
		return nil
	case isNotFound(err):
		zapLog.Warn("order event for user without membership, skipped")
		return nil
	case errutil.Is(err, errutil.StatusConflict):
		zapLog.Info("order event already applied")
		return nil
	case errutil.Is(err, errutil.StatusValidationFailed):
		zapLog.Error("invalid order event", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}
