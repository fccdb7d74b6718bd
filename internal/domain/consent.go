package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsentType labels what the user consented to.
type ConsentType string

const (
	ConsentTypeMarketing   ConsentType = "MARKETING"
	ConsentTypeAnalytics   ConsentType = "ANALYTICS"
	ConsentTypeDataSharing ConsentType = "DATA_SHARING"
	ConsentTypeProfiling   ConsentType = "PROFILING"
	ConsentTypeThirdParty  ConsentType = "THIRD_PARTY"
)

// ValidConsentType reports whether v names a known consent type.
func ValidConsentType(v ConsentType) bool {
	switch v {
	case ConsentTypeMarketing, ConsentTypeAnalytics, ConsentTypeDataSharing,
		ConsentTypeProfiling, ConsentTypeThirdParty:
		return true
	}
	return false
}

// ConsentStatus is the lifecycle state of a consent record.
// GRANTED -> WITHDRAWN and GRANTED -> EXPIRED are the only transitions;
// both targets are terminal.
type ConsentStatus string

const (
	ConsentGranted   ConsentStatus = "GRANTED"
	ConsentWithdrawn ConsentStatus = "WITHDRAWN"
	ConsentExpired   ConsentStatus = "EXPIRED"
)

// ConsentRecord is one append-only consent decision. Withdrawing or expiring
// never deletes history; a fresh grant is always a new record.
type ConsentRecord struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	ConsentType    ConsentType   `json:"consent_type"`
	Purposes       []string      `json:"purposes"`
	DataCategories []string      `json:"data_categories"`
	ThirdParties   []string      `json:"third_parties,omitempty"`
	Status         ConsentStatus `json:"status"`
	GrantedAt      time.Time     `json:"granted_at"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	WithdrawnAt    *time.Time    `json:"withdrawn_at,omitempty"`
	WithdrawReason *string       `json:"withdraw_reason,omitempty"`
	IPAddress      string        `json:"ip_address,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// CanTransition reports whether a consent record may move from its current
// status to the target. Terminal states never revert.
func (c *ConsentRecord) CanTransition(to ConsentStatus) bool {
	if c.Status != ConsentGranted {
		return false
	}
	return to == ConsentWithdrawn || to == ConsentExpired
}

// IsActive reports whether the consent currently authorizes processing.
func (c *ConsentRecord) IsActive(now time.Time) bool {
	if c.Status != ConsentGranted {
		return false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// ConsentStats is the privacy section input for one period.
type ConsentStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByType   map[string]int64 `json:"by_type"`
}
