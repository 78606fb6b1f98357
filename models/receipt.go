package models

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Cents stores a monetary amount in the smallest currency unit but marshals
// as a two-decimal JSON number, so "amount": 12.5 round-trips as 12.50.
type Cents int64

// CentsFromFloat rounds a decimal amount to whole cents. Negative inputs
// are clamped to zero; extracted amounts are best-effort and never negative.
func CentsFromFloat(f float64) Cents {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Cents(math.Round(f * 100))
}

// Float returns the amount in whole currency units.
func (c Cents) Float() float64 { return float64(c) / 100 }

func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(c.Float(), 'f', 2, 64)), nil
}

func (c *Cents) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", string(b), err)
	}
	*c = CentsFromFloat(f)
	return nil
}

// Receipt is a single extracted receipt belonging to exactly one user.
// The extracted fields (vendor, date, amount, currency, category) are
// best-effort: absent values are defaulted upstream, never rejected.
// CreatedAt is the sole ordering key for listing (newest first).
type Receipt struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `gorm:"size:36;index;not null" json:"user_id"`
	ImageURL  string    `gorm:"size:512" json:"image_url,omitempty"`
	Vendor    string    `gorm:"size:255" json:"vendor"`
	Date      string    `gorm:"size:10" json:"date"` // YYYY-MM-DD
	Amount    Cents     `gorm:"not null" json:"amount"`
	Currency  string    `gorm:"size:8;not null;default:USD" json:"currency"`
	Category  string    `gorm:"size:64" json:"category"`
}

func (Receipt) TableName() string { return "receipts" }
