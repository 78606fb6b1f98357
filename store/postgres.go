package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"receiptvault/models"
)

// Postgres implements Store against the managed database (Supabase speaks
// plain Postgres). It is a thin mapping from facade operations to queries;
// the driver and the schema's constraints do the heavy lifting.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates/updates the users and receipts tables.
func (p *Postgres) Migrate() error {
	return p.db.AutoMigrate(&models.UserProfile{}, &models.Receipt{})
}

// mapErr translates driver errors into the facade taxonomy. A missing row
// is a legitimate empty result, everything else is a backend failure.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueConstraintError(err):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := p.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	nu := *u
	if nu.ID == "" {
		nu.ID = NewID()
	}
	nu.CreatedAt = Now()
	if nu.SubscriptionTier == "" {
		nu.SubscriptionTier = models.TierFree
	}
	// conditional insert: the unique email index decides, no pre-check race
	if err := p.db.WithContext(ctx).Create(&nu).Error; err != nil {
		return nil, mapErr(err)
	}
	return &nu, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.UserProfile, error) {
	updates := map[string]any{}
	if upd.SubscriptionTier != nil {
		updates["subscription_tier"] = *upd.SubscriptionTier
	}
	if upd.ReceiptsThisMonth != nil {
		updates["receipts_this_month"] = *upd.ReceiptsThisMonth
	}
	var u models.UserProfile
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&u).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&u).Error
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Receipt{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.UserProfile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return mapErr(err)
}

func (p *Postgres) ListReceipts(ctx context.Context, userID string) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&receipts).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return receipts, nil
}

func (p *Postgres) CreateReceipt(ctx context.Context, r *models.Receipt) (*models.Receipt, error) {
	var owner models.UserProfile
	if err := p.db.WithContext(ctx).Where("id = ?", r.UserID).First(&owner).Error; err != nil {
		return nil, mapErr(err)
	}
	nr := *r
	if nr.ID == "" {
		nr.ID = NewID()
	}
	nr.CreatedAt = Now()
	if nr.Currency == "" {
		nr.Currency = "USD"
	}
	if err := p.db.WithContext(ctx).Create(&nr).Error; err != nil {
		return nil, mapErr(err)
	}
	return &nr, nil
}

func (p *Postgres) UpdateReceipt(ctx context.Context, id string, upd ReceiptUpdate) (*models.Receipt, error) {
	updates := map[string]any{}
	if upd.ImageURL != nil {
		updates["image_url"] = *upd.ImageURL
	}
	if upd.Vendor != nil {
		updates["vendor"] = *upd.Vendor
	}
	if upd.Date != nil {
		updates["date"] = *upd.Date
	}
	if upd.Amount != nil {
		updates["amount"] = *upd.Amount
	}
	if upd.Currency != nil {
		updates["currency"] = *upd.Currency
	}
	if upd.Category != nil {
		updates["category"] = *upd.Category
	}
	var r models.Receipt
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&r).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&r).Error
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (p *Postgres) DeleteReceipt(ctx context.Context, id string) error {
	res := p.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Receipt{})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
