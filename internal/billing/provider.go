package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrProvider = errors.New("payment provider request failed")

// Payer identifies who the charge is issued against.
type Payer struct {
	Name     string
	Email    string
	Document string
}

// Instrument is a provider-issued way to pay: a PIX copy-paste code or a
// hosted card-payment link, plus the instant it stops being honored.
type Instrument struct {
	Ref       string
	URL       string
	ExpiresAt time.Time
}

// Provider creates payment instruments against the external gateway. Both
// calls are network-bound and fallible; callers bound them with a context
// timeout and must tolerate failure.
type Provider interface {
	CreatePixCharge(ctx context.Context, paymentID uuid.UUID, amountCents int64, payer Payer, expiryMinutes int) (*Instrument, error)
	CreateCardLink(ctx context.Context, paymentID uuid.UUID, amountCents int64, expiryMinutes int) (*Instrument, error)
}
