package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	// Chats holds the whole transcript so that one row update persists an exchange.
	Chats     datatypes.JSONSlice[MessageModel] `gorm:"not null"`
	CreatedAt time.Time                         `gorm:"not null;index"`
	UpdatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

type MessageModel struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
