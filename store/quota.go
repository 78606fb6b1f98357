package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"receiptvault/models"
)

// FreeReceiptLimit is the maximum number of stored receipts for a free
// tier account. Pro accounts are unlimited.
const FreeReceiptLimit = 5

// CheckQuota decides whether the owner may store one more receipt given the
// current stored count. Enforced at the successful-create boundary only;
// an existing overage is prevented from growing, not corrected.
func CheckQuota(u *models.UserProfile, stored int) error {
	if u.SubscriptionTier != models.TierPro && stored >= FreeReceiptLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// AddReceipt is the quota-gated create path. It loads the owning user
// (missing owner is ErrNotFound, so orphaned receipts cannot be created),
// counts the stored receipts, applies the quota, then persists.
//
// The count-then-insert is not atomic across requests: two concurrent
// creates can both observe count=4 and both succeed. That matches the
// observed behavior of the system this replaces; the local backend's
// store-wide lock serializes it within one process.
func AddReceipt(ctx context.Context, s Store, userID string, r *models.Receipt) (*models.Receipt, error) {
	owner, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.ListReceipts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := CheckQuota(owner, len(existing)); err != nil {
		return nil, err
	}
	r.UserID = userID
	return s.CreateReceipt(ctx, r)
}

// NewID returns a fresh opaque identifier. IDs are never reused.
func NewID() string { return uuid.NewString() }

// Now is stubbed in tests that need deterministic created_at ordering.
var Now = time.Now
