package model

import (
	"time"

	"github.com/google/uuid"
)

// Bus topics for the events below.
const (
	TopicCreditsAssigned    = "credits.assigned"
	TopicPromotionsRedeemed = "promotions.redeemed"
)

// CreditAssignedEvent is published after an assignment commits. Sibling
// instances use it to refresh their balance caches.
type CreditAssignedEvent struct {
	AuthorID   string    `json:"author_id"`
	Amount     int64     `json:"amount"`
	EventType  EventType `json:"event_type"`
	NewBalance int64     `json:"new_balance"`
	CreatedAt  time.Time `json:"created_at"`
}

// PromotionRedeemedEvent is published after a redemption commits.
type PromotionRedeemedEvent struct {
	PromotionCodeID uuid.UUID `json:"promotion_code_id"`
	Code            string    `json:"code"`
	AuthorID        string    `json:"author_id"`
	CreditsGranted  int64     `json:"credits_granted"`
	NewBalance      int64     `json:"new_balance"`
	RedeemedAt      time.Time `json:"redeemed_at"`
}
