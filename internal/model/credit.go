package model

import "time"

// EventType classifies a ledger entry. The set is closed: every balance
// change in the system maps to exactly one of these.
type EventType string

const (
	EventInitialCredit       EventType = "initialCredit"
	EventCreditPurchase      EventType = "creditPurchase"
	EventEBookGeneration     EventType = "eBookGeneration"
	EventAudioBookGeneration EventType = "audioBookGeneration"
	EventPrintOrder          EventType = "printOrder"
	EventRefund              EventType = "refund"
	EventVoucher             EventType = "voucher"
	EventPromotion           EventType = "promotion"
	EventTextEdit            EventType = "textEdit"
	EventImageEdit           EventType = "imageEdit"
)

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case EventInitialCredit, EventCreditPurchase, EventEBookGeneration,
		EventAudioBookGeneration, EventPrintOrder, EventRefund,
		EventVoucher, EventPromotion, EventTextEdit, EventImageEdit:
		return true
	}
	return false
}

// AdminAssignable reports whether t may be used through the restricted
// admin assignment path. System-generated debits use the full set.
func (t EventType) AdminAssignable() bool {
	switch t {
	case EventRefund, EventVoucher, EventPromotion:
		return true
	}
	return false
}

// LedgerEntry is one immutable, signed credit movement for an author.
// Entries are never updated or deleted; corrections are appended as
// compensating entries (e.g. a refund).
type LedgerEntry struct {
	ID         int64     `json:"id"`
	AuthorID   string    `json:"author_id"`
	Amount     int64     `json:"amount"`
	EventType  EventType `json:"event_type"`
	StoryID    *string   `json:"story_id,omitempty"`
	PurchaseID *string   `json:"purchase_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntryRefs carries the optional foreign references an entry may point
// at. Both identifiers are opaque: they belong to external collaborators.
type EntryRefs struct {
	StoryID    *string
	PurchaseID *string
}

// HistoryItem pairs a ledger entry with the running balance immediately
// after it was applied.
type HistoryItem struct {
	Entry        LedgerEntry `json:"entry"`
	BalanceAfter int64       `json:"balance_after"`
}
