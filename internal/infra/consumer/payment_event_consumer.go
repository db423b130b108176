package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	evt "github.com/oapi-lab/canteen/internal/domain/model/event"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// PaymentEventConsumer 消費 OrderPaid 事件，把訂單翻成已付款
// at-least-once：SetOrderPaid 是冪等 UPDATE，重複投遞無副作用
// 處理失敗不 commit offset，等下一輪重投
type PaymentEventConsumer struct {
	reader    *kafka.Reader
	orderRepo db.IOrderRepository
	logger    zerolog.Logger
}

func NewPaymentEventConsumer(brokers []string, topic, groupID string, orderRepo db.IOrderRepository, logger zerolog.Logger) *PaymentEventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &PaymentEventConsumer{
		reader:    reader,
		orderRepo: orderRepo,
		logger:    logger,
	}
}

// Run 阻塞消費直到 ctx 取消
func (c *PaymentEventConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.Error().Err(err).
				Str("key", string(msg.Key)).
				Int64("offset", msg.Offset).
				Msg("failed to handle payment event, will retry")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

func (c *PaymentEventConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var e evt.OrderPaidEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		// 格式錯誤的訊息重投也不會成功，記log後放行
		c.logger.Error().Err(err).Str("key", string(msg.Key)).Msg("malformed payment event, skipping")
		return nil
	}
	if e.EventType != evt.OrderPaidEventName {
		return nil
	}

	if err := c.orderRepo.SetOrderPaid(ctx, e.OrderNumber); err != nil {
		return err
	}

	c.logger.Info().
		Str("order_number", e.OrderNumber).
		Str("payment_id", e.PaymentID).
		Msg("order marked as paid")
	return nil
}

func (c *PaymentEventConsumer) Close() error {
	return c.reader.Close()
}
