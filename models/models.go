package models

import (
	"time"

	"gorm.io/gorm"
)

// DBOptionContract represents a stored option contract.
// Ids are assigned from DBSequence, never by the database.
type DBOptionContract struct {
	ID             int64  `gorm:"primaryKey;autoIncrement:false"`
	Ticker         string `gorm:"index"`
	Underlying     string `gorm:"index"`
	ContractType   string `gorm:"not null"`
	ExerciseStyle  string `gorm:"not null"`
	StrikePrice    string `gorm:"not null"`       // exact decimal text
	ExpirationDate string `gorm:"not null;index"` // YYYY-MM-DD
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DBSequence holds the last value issued by a named id sequence
type DBSequence struct {
	Name  string `gorm:"primaryKey"`
	Value int64
}

// DBUser represents an account allowed to obtain access tokens
type DBUser struct {
	gorm.Model
	Username       string `gorm:"uniqueIndex"`
	FullName       string
	Email          string
	HashedPassword string
	Disabled       bool
}

// TableName overrides for cleaner table names
func (DBOptionContract) TableName() string {
	return "options"
}

func (DBSequence) TableName() string {
	return "option_sequences"
}

func (DBUser) TableName() string {
	return "users"
}
