package model

import (
	"time"

	"github.com/google/uuid"
)

// PromotionCode is a named, capped, time-bounded voucher redeemable for a
// fixed credit amount. Codes are stored normalized to uppercase. The only
// supported mutation after creation is toggling Active.
type PromotionCode struct {
	ID                    uuid.UUID  `json:"id"`
	Code                  string     `json:"code"`
	Type                  string     `json:"type"`
	CreditAmount          int64      `json:"credit_amount"`
	MaxGlobalRedemptions  *int       `json:"max_global_redemptions,omitempty"`
	MaxRedemptionsPerUser int        `json:"max_redemptions_per_user"`
	ValidFrom             *time.Time `json:"valid_from,omitempty"`
	ValidUntil            *time.Time `json:"valid_until,omitempty"`
	Active                bool       `json:"active"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	// Computed on read, never stored.
	TotalRedemptions int  `json:"total_redemptions"`
	RemainingGlobal  *int `json:"remaining_global,omitempty"`
}

// AttachComputed fills RemainingGlobal from the current redemption count.
// A nil global cap means unlimited, reported as a nil remainder.
func (p *PromotionCode) AttachComputed(totalRedemptions int) {
	p.TotalRedemptions = totalRedemptions
	if p.MaxGlobalRedemptions == nil {
		p.RemainingGlobal = nil
		return
	}
	remaining := *p.MaxGlobalRedemptions - totalRedemptions
	if remaining < 0 {
		remaining = 0
	}
	p.RemainingGlobal = &remaining
}

// Redemption records one successful promotion-code use by one author.
// Rows are written exactly once and never touched again.
type Redemption struct {
	ID              uuid.UUID `json:"id"`
	PromotionCodeID uuid.UUID `json:"promotion_code_id"`
	AuthorID        string    `json:"author_id"`
	CreditsGranted  int64     `json:"credits_granted"`
	RedeemedAt      time.Time `json:"redeemed_at"`
}

// CreatePromotionCodeParams is the input to registry creation. Zero
// values pick the documented defaults: one redemption per user, active.
type CreatePromotionCodeParams struct {
	Code                  string     `json:"code"`
	Type                  string     `json:"type"`
	CreditAmount          int64      `json:"credit_amount"`
	MaxGlobalRedemptions  *int       `json:"max_global_redemptions,omitempty"`
	MaxRedemptionsPerUser int        `json:"max_redemptions_per_user,omitempty"`
	ValidFrom             *time.Time `json:"valid_from,omitempty"`
	ValidUntil            *time.Time `json:"valid_until,omitempty"`
	Active                *bool      `json:"active,omitempty"`
}

// PromotionCodeFilter narrows and pages a registry listing.
type PromotionCodeFilter struct {
	Search string `json:"search,omitempty"`
	Type   string `json:"type,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

// PromotionCodePage is one page of a registry listing plus the unpaged
// total for the same filter.
type PromotionCodePage struct {
	Items []PromotionCode `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}
