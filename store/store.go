// Package store is the single data-access facade the handlers talk to.
// Two implementations exist: a Postgres adapter for the managed database
// and a local JSON fallback for development. Which one is active is decided
// once at startup; call sites never branch on the backend.
package store

import (
	"context"
	"errors"
	"strings"

	"receiptvault/models"
)

var (
	// ErrNotFound covers missing records and ownership mismatches alike,
	// so acting on someone else's receipt never confirms it exists.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on duplicate unique keys (email).
	ErrConflict = errors.New("already exists")
	// ErrQuotaExceeded is the free-tier receipt limit. Distinct from other
	// failures so callers can answer with an upgrade prompt.
	ErrQuotaExceeded = errors.New("free plan receipt limit reached")
	// ErrUnavailable wraps transport-level backend failures. A missing
	// record is never reported as ErrUnavailable.
	ErrUnavailable = errors.New("backend unavailable")
)

// UserUpdate is a partial user mutation; nil fields are left untouched.
type UserUpdate struct {
	SubscriptionTier  *string
	ReceiptsThisMonth *int
}

// ReceiptUpdate is a partial receipt mutation; nil fields are left untouched.
type ReceiptUpdate struct {
	ImageURL *string
	Vendor   *string
	Date     *string
	Amount   *models.Cents
	Currency *string
	Category *string
}

// Store is the facade contract. Both backends must behave identically in
// outcome for every operation; the test suite verifies that equivalence.
// Writes that did not persist always surface an error.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	CreateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.UserProfile, error)
	DeleteUser(ctx context.Context, id string) error

	ListReceipts(ctx context.Context, userID string) ([]models.Receipt, error)
	CreateReceipt(ctx context.Context, r *models.Receipt) (*models.Receipt, error)
	UpdateReceipt(ctx context.Context, id string, upd ReceiptUpdate) (*models.Receipt, error)
	DeleteReceipt(ctx context.Context, id string) error
}

// isUniqueConstraintError sniffs driver errors for unique violations so the
// conditional insert can report ErrConflict instead of a generic failure.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
