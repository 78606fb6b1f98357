package models

import "time"

// Subscription tiers. Free accounts are capped by the receipt quota,
// pro accounts are unlimited.
const (
	TierFree = "free"
	TierPro  = "pro"
)

// UserProfile is an account row. ID is a UUID assigned at creation and
// never mutated afterwards. Email is the secondary lookup key and unique
// across all profiles.
type UserProfile struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Email             string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash      []byte    `gorm:"not null" json:"-"`
	SubscriptionTier  string    `gorm:"size:16;not null;default:free" json:"subscription_tier"`
	ReceiptsThisMonth int       `gorm:"not null;default:0" json:"receipts_this_month"`
	Receipts          []Receipt `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// TableName keeps the table name aligned with the persisted collection name.
func (UserProfile) TableName() string { return "users" }
