package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

// intakeActor attributes event-driven activity in the audit trail.
var intakeActor = service.Actor{UserID: uuid.MustParse("00000000-0000-0000-0000-000000000002")}

// IntakeConsumer feeds the engine from the bank's event streams: posted
// transactions are scored and tax-classified, consent events recorded.
type IntakeConsumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       *intakeHandler
	logger        *zap.Logger
}

func NewIntakeConsumer(
	cfg config.KafkaConfig,
	risk *service.RiskService,
	gst *service.GSTService,
	consent *service.ConsentService,
	logger *zap.Logger,
) (*IntakeConsumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &IntakeConsumer{
		consumerGroup: consumerGroup,
		topics:        []string{cfg.TransactionTopic, cfg.ConsentTopic},
		handler: &intakeHandler{
			risk:             risk,
			gst:              gst,
			consent:          consent,
			transactionTopic: cfg.TransactionTopic,
			consentTopic:     cfg.ConsentTopic,
			logger:           logger,
		},
		logger: logger,
	}, nil
}

func (c *IntakeConsumer) Start(ctx context.Context) error {
	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, c.handler); err != nil {
			if ctx.Err() != nil {
				return nil // Context canceled
			}
			c.logger.Error("Error from consumer", zap.Error(err))
			time.Sleep(time.Second * 5) // Retry backoff
		}
	}
}

func (c *IntakeConsumer) Close() error {
	return c.consumerGroup.Close()
}

type intakeHandler struct {
	risk             *service.RiskService
	gst              *service.GSTService
	consent          *service.ConsentService
	transactionTopic string
	consentTopic     string
	logger           *zap.Logger
}

func (h *intakeHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *intakeHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *intakeHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.processMessage(session.Context(), message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *intakeHandler) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	var err error
	switch msg.Topic {
	case h.transactionTopic:
		err = h.handleTransaction(ctx, msg.Value)
	case h.consentTopic:
		err = h.handleConsent(ctx, msg.Value)
	default:
		h.logger.Warn("message from unexpected topic", zap.String("topic", msg.Topic))
		return
	}

	if err != nil {
		if domain.IsValidation(err) {
			// Malformed payloads are skipped, never retried and never crash
			// the loop.
			h.logger.Error("skipping malformed event",
				zap.String("topic", msg.Topic), zap.Error(err))
			return
		}
		h.retry(ctx, msg, err)
	}
}

func (h *intakeHandler) retry(ctx context.Context, msg *sarama.ConsumerMessage, firstErr error) {
	const maxRetries = 3
	err := firstErr
	for i := 1; i < maxRetries; i++ {
		h.logger.Error("failed to process event",
			zap.String("topic", msg.Topic),
			zap.Error(err),
			zap.Int("retry", i),
		)
		time.Sleep(time.Duration(i) * time.Second) // Simple backoff

		switch msg.Topic {
		case h.transactionTopic:
			err = h.handleTransaction(ctx, msg.Value)
		case h.consentTopic:
			err = h.handleConsent(ctx, msg.Value)
		}
		if err == nil {
			return
		}
	}
	h.logger.Error("dropping event after retries",
		zap.String("topic", msg.Topic), zap.Error(err))
}

// transactionEvent is the posted-transaction wire shape.
type transactionEvent struct {
	TransactionID  uuid.UUID                  `json:"transaction_id"`
	UserID         uuid.UUID                  `json:"user_id"`
	Amount         decimal.Decimal            `json:"amount"`
	GSTAmount      decimal.Decimal            `json:"gst_amount"`
	Currency       string                     `json:"currency"`
	Category       domain.TransactionCategory `json:"category"`
	Counterparty   string                     `json:"counterparty"`
	CashEquivalent bool                       `json:"cash_equivalent"`
	OccurredAt     time.Time                  `json:"occurred_at"`
}

func (h *intakeHandler) handleTransaction(ctx context.Context, payload []byte) error {
	var ev transactionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.ValidationError("unmarshal transaction event: %v", err)
	}

	tx := &domain.Transaction{
		ID:             ev.TransactionID,
		UserID:         ev.UserID,
		Amount:         ev.Amount,
		Currency:       ev.Currency,
		Category:       ev.Category,
		Counterparty:   ev.Counterparty,
		CashEquivalent: ev.CashEquivalent,
		OccurredAt:     ev.OccurredAt,
	}
	if _, err := h.risk.Evaluate(ctx, tx, intakeActor); err != nil {
		return fmt.Errorf("evaluate transaction %s: %w", ev.TransactionID, err)
	}

	_, err := h.gst.Classify(ctx, service.ClassifyInput{
		TransactionID: ev.TransactionID,
		Category:      ev.Category,
		BaseAmount:    ev.Amount,
		GSTAmount:     ev.GSTAmount,
	}, intakeActor)
	if err != nil {
		return fmt.Errorf("classify transaction %s: %w", ev.TransactionID, err)
	}
	return nil
}

// consentEvent is the consent-capture wire shape.
type consentEvent struct {
	Action         string             `json:"action"` // GRANT or WITHDRAW
	UserID         uuid.UUID          `json:"user_id"`
	ConsentType    domain.ConsentType `json:"consent_type"`
	Purposes       []string           `json:"purposes"`
	DataCategories []string           `json:"data_categories"`
	ThirdParties   []string           `json:"third_parties"`
	ExpiryDays     int                `json:"expiry_days"`
	Reason         string             `json:"reason"`
	IPAddress      string             `json:"ip_address"`
}

func (h *intakeHandler) handleConsent(ctx context.Context, payload []byte) error {
	var ev consentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.ValidationError("unmarshal consent event: %v", err)
	}

	actor := intakeActor
	actor.IPAddress = ev.IPAddress

	switch ev.Action {
	case "GRANT":
		_, err := h.consent.RecordConsent(ctx, service.RecordConsentInput{
			UserID:         ev.UserID,
			ConsentType:    ev.ConsentType,
			Purposes:       ev.Purposes,
			DataCategories: ev.DataCategories,
			ThirdParties:   ev.ThirdParties,
			ExpiryDays:     ev.ExpiryDays,
		}, actor)
		return err
	case "WITHDRAW":
		_, err := h.consent.WithdrawConsent(ctx, ev.UserID, ev.ConsentType, ev.Reason, actor)
		if domain.IsConflict(err) {
			// Nothing active to withdraw; the stream may replay.
			return nil
		}
		return err
	default:
		return domain.ValidationError("unknown consent action %q", ev.Action)
	}
}
