package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"receiptvault/models"
	"receiptvault/pkg/blob"
)

const (
	usersCollection    = "users"
	receiptsCollection = "receipts"
)

// Local implements Store on top of the blob fallback store. The blob layer
// only knows load-all/save-all, so every policy (email uniqueness, owner
// checks, ordering, cascade) is implemented here — the same rules the real
// database enforces, so the two backends stay outcome-equivalent.
//
// One mutex covers every operation: a load-then-save sequence is a single
// critical section, closing the lost-update window between two requests in
// the same process. The fallback path is development-only by design.
type Local struct {
	mu sync.Mutex
	fs *blob.FileStore
}

func NewLocal(fs *blob.FileStore) *Local {
	return &Local{fs: fs}
}

// userRecord is the persisted shape of a profile. The API model hides the
// password hash from JSON, the stored record must not.
type userRecord struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Email             string    `json:"email"`
	PasswordHash      []byte    `json:"password_hash"`
	SubscriptionTier  string    `json:"subscription_tier"`
	ReceiptsThisMonth int       `json:"receipts_this_month"`
}

func toRecord(u models.UserProfile) userRecord {
	return userRecord{
		ID:                u.ID,
		CreatedAt:         u.CreatedAt,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		SubscriptionTier:  u.SubscriptionTier,
		ReceiptsThisMonth: u.ReceiptsThisMonth,
	}
}

func (r userRecord) profile() models.UserProfile {
	return models.UserProfile{
		ID:                r.ID,
		CreatedAt:         r.CreatedAt,
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		SubscriptionTier:  r.SubscriptionTier,
		ReceiptsThisMonth: r.ReceiptsThisMonth,
	}
}

func (l *Local) loadUsers() ([]userRecord, error) {
	var users []userRecord
	if err := l.fs.LoadCollection(usersCollection, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return users, nil
}

func (l *Local) saveUsers(users []userRecord) error {
	if err := l.fs.SaveCollection(usersCollection, users); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Local) loadReceipts() ([]models.Receipt, error) {
	var receipts []models.Receipt
	if err := l.fs.LoadCollection(receiptsCollection, &receipts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return receipts, nil
}

func (l *Local) saveReceipts(receipts []models.Receipt) error {
	if err := l.fs.SaveCollection(receiptsCollection, receipts); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Local) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, err := l.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			u := users[i].profile()
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (l *Local) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, err := l.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == email {
			u := users[i].profile()
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (l *Local) CreateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, err := l.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == u.Email {
			return nil, ErrConflict
		}
	}
	nu := *u
	if nu.ID == "" {
		nu.ID = NewID()
	}
	nu.CreatedAt = Now()
	if nu.SubscriptionTier == "" {
		nu.SubscriptionTier = models.TierFree
	}
	users = append(users, toRecord(nu))
	if err := l.saveUsers(users); err != nil {
		return nil, err
	}
	return &nu, nil
}

func (l *Local) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.UserProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, err := l.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID != id {
			continue
		}
		if upd.SubscriptionTier != nil {
			users[i].SubscriptionTier = *upd.SubscriptionTier
		}
		if upd.ReceiptsThisMonth != nil {
			users[i].ReceiptsThisMonth = *upd.ReceiptsThisMonth
		}
		if err := l.saveUsers(users); err != nil {
			return nil, err
		}
		u := users[i].profile()
		return &u, nil
	}
	return nil, ErrNotFound
}

func (l *Local) DeleteUser(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, err := l.loadUsers()
	if err != nil {
		return err
	}
	kept := users[:0]
	found := false
	for _, u := range users {
		if u.ID == id {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		return ErrNotFound
	}
	// cascade before removing the user: a failed receipt save leaves the
	// user intact and retryable instead of orphaning their receipts
	receipts, err := l.loadReceipts()
	if err != nil {
		return err
	}
	keptReceipts := receipts[:0]
	for _, r := range receipts {
		if r.UserID != id {
			keptReceipts = append(keptReceipts, r)
		}
	}
	if err := l.saveReceipts(keptReceipts); err != nil {
		return err
	}
	return l.saveUsers(kept)
}

func (l *Local) ListReceipts(ctx context.Context, userID string) ([]models.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipts, err := l.loadReceipts()
	if err != nil {
		return nil, err
	}
	var out []models.Receipt
	// walk backwards so same-timestamp records keep insertion recency
	for i := len(receipts) - 1; i >= 0; i-- {
		if receipts[i].UserID == userID {
			out = append(out, receipts[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (l *Local) CreateReceipt(ctx context.Context, r *models.Receipt) (*models.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, err := l.loadUsers()
	if err != nil {
		return nil, err
	}
	ownerExists := false
	for i := range users {
		if users[i].ID == r.UserID {
			ownerExists = true
			break
		}
	}
	if !ownerExists {
		return nil, ErrNotFound
	}
	receipts, err := l.loadReceipts()
	if err != nil {
		return nil, err
	}
	nr := *r
	if nr.ID == "" {
		nr.ID = NewID()
	}
	nr.CreatedAt = Now()
	if nr.Currency == "" {
		nr.Currency = "USD"
	}
	receipts = append(receipts, nr)
	if err := l.saveReceipts(receipts); err != nil {
		return nil, err
	}
	return &nr, nil
}

func (l *Local) UpdateReceipt(ctx context.Context, id string, upd ReceiptUpdate) (*models.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipts, err := l.loadReceipts()
	if err != nil {
		return nil, err
	}
	for i := range receipts {
		if receipts[i].ID != id {
			continue
		}
		applyReceiptUpdate(&receipts[i], upd)
		if err := l.saveReceipts(receipts); err != nil {
			return nil, err
		}
		r := receipts[i]
		return &r, nil
	}
	return nil, ErrNotFound
}

func (l *Local) DeleteReceipt(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipts, err := l.loadReceipts()
	if err != nil {
		return err
	}
	kept := receipts[:0]
	found := false
	for _, r := range receipts {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return ErrNotFound
	}
	return l.saveReceipts(kept)
}

func applyReceiptUpdate(r *models.Receipt, upd ReceiptUpdate) {
	if upd.ImageURL != nil {
		r.ImageURL = *upd.ImageURL
	}
	if upd.Vendor != nil {
		r.Vendor = *upd.Vendor
	}
	if upd.Date != nil {
		r.Date = *upd.Date
	}
	if upd.Amount != nil {
		r.Amount = *upd.Amount
	}
	if upd.Currency != nil {
		r.Currency = *upd.Currency
	}
	if upd.Category != nil {
		r.Category = *upd.Category
	}
}
