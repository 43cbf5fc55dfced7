package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delivery kinds recorded in the journal.
const (
	KindRegular = "regular"
	KindMonthly = "monthly"
)

// Delivery is one message the channel confirmed.
type Delivery struct {
	ID             int64
	Kind           string
	MessageID      int64
	Body           string
	PrimaryPrice   decimal.Decimal
	SecondaryPrice decimal.Decimal
	SentAt         time.Time
}
