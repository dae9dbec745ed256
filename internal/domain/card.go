package domain

import (
	"fmt"
	"strings"
	"time"
)

// Card is a credit card submitted for storage at the vault.
// Only the display fragments are ever persisted locally.
type Card struct {
	Number          string          `json:"number" validate:"required,numeric,min=12,max=19,luhn_checksum"`
	CVV             string          `json:"cvv" validate:"omitempty,numeric,min=3,max=4"`
	FirstName       string          `json:"first_name" validate:"required"`
	LastName        string          `json:"last_name" validate:"required"`
	ExpirationMonth int             `json:"expiration_month" validate:"required,min=1,max=12"`
	ExpirationYear  int             `json:"expiration_year" validate:"required,min=2000"`
	BillingAddress  *BillingAddress `json:"billing_address,omitempty"`
}

// BillingAddress is forwarded to the vault with the card
type BillingAddress struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
}

// LastFour returns the last four digits of the card number
func (c *Card) LastFour() string {
	n := strings.TrimSpace(c.Number)
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

// Expiration returns the display expiry, e.g. "05-2012"
func (c *Card) Expiration() string {
	return fmt.Sprintf("%02d-%d", c.ExpirationMonth, c.ExpirationYear)
}

// IsExpired reports whether the card expired before the month containing now
func (c *Card) IsExpired(now time.Time) bool {
	y, m, _ := now.Date()
	if c.ExpirationYear != y {
		return c.ExpirationYear < y
	}
	return c.ExpirationMonth < int(m)
}
