package sqlite

import "time"

type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null;default:''"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

// LocalStorageEntryModel is one key of one client's persisted storage.
type LocalStorageEntryModel struct {
	ID        uint   `gorm:"primaryKey"`
	Namespace string `gorm:"not null;index:idx_namespace_key,unique"`
	Key       string `gorm:"not null;index:idx_namespace_key,unique"`
	Value     string `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LocalStorageEntryModel) TableName() string { return "local_storage_entries" }

type AuditLogModel struct {
	ID          uint `gorm:"primaryKey"`
	ActorUserID *uint
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
