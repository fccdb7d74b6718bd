package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionCategory is the business classification supplied by the posting
// system. The GST classifier and the suspicious-activity evaluator both key
// off it.
type TransactionCategory string

const (
	CategoryGeneral       TransactionCategory = "GENERAL"
	CategoryGroceries     TransactionCategory = "GROCERIES"
	CategoryMedical       TransactionCategory = "MEDICAL"
	CategoryEducation     TransactionCategory = "EDUCATION"
	CategoryFinancial     TransactionCategory = "FINANCIAL"
	CategoryResidential   TransactionCategory = "RESIDENTIAL_RENT"
	CategoryGambling      TransactionCategory = "GAMBLING"
	CategoryCrypto        TransactionCategory = "CRYPTO_EXCHANGE"
	CategoryInternational TransactionCategory = "INTERNATIONAL"
	CategoryExport        TransactionCategory = "EXPORT"
)

// Transaction is the evaluation input handed to the engine by the posting
// layer. The engine never mutates it.
type Transaction struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	Category       TransactionCategory `json:"category"`
	Counterparty   string              `json:"counterparty"`
	CashEquivalent bool                `json:"cash_equivalent"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// Validate rejects transactions the engine cannot score.
func (t Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return ValidationError("transaction id is required")
	}
	if t.UserID == uuid.Nil {
		return ValidationError("transaction user id is required")
	}
	if t.Amount.IsNegative() {
		return ValidationError("transaction amount must not be negative")
	}
	return nil
}
