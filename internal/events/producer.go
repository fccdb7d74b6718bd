package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

// Producer publishes regulator submissions and operational alerts. It backs
// both the RegulatorQueue and the AlertPublisher sides of the engine.
type Producer struct {
	producer       sarama.SyncProducer
	regulatorTopic string
	alertTopic     string
	logger         *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &Producer{
		producer:       producer,
		regulatorTopic: cfg.RegulatorTopic,
		alertTopic:     cfg.AlertTopic,
		logger:         logger,
	}, nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// regulatorSubmission is the wire shape handed to the submission channel.
type regulatorSubmission struct {
	RiskRecordID   string    `json:"risk_record_id"`
	TransactionID  string    `json:"transaction_id"`
	UserID         string    `json:"user_id"`
	Amount         string    `json:"amount"`
	RiskScore      float64   `json:"risk_score"`
	MonitoringType string    `json:"monitoring_type"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Submit publishes one high-risk record to the regulator submission topic.
// The reference is derived from the committed partition and offset, which
// uniquely identify the filing on the channel.
func (p *Producer) Submit(ctx context.Context, rec *domain.RiskRecord) (string, error) {
	payload, err := json.Marshal(regulatorSubmission{
		RiskRecordID:   rec.ID.String(),
		TransactionID:  rec.TransactionID.String(),
		UserID:         rec.UserID.String(),
		Amount:         rec.Amount.StringFixed(2),
		RiskScore:      rec.RiskScore,
		MonitoringType: string(rec.MonitoringType),
		EvaluatedAt:    rec.EvaluatedAt,
		SubmittedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.regulatorTopic,
		Key:   sarama.StringEncoder(rec.ID.String()),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish submission: %w", err)
	}

	reference := fmt.Sprintf("AUSTRAC-%d-%d", partition, offset)
	p.logger.Info("regulator submission published",
		zap.String("risk_record_id", rec.ID.String()),
		zap.String("reference", reference),
	)
	return reference, nil
}

// PublishAlert publishes one operational alert.
func (p *Producer) PublishAlert(ctx context.Context, alert service.OperationalAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.alertTopic,
		Key:   sarama.StringEncoder(alert.Kind),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
