package entity

import (
	"time"

	"github.com/google/uuid"
)

// PatientProfile represents patient-specific directory data
type PatientProfile struct {
	UserID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	DateOfBirth   *time.Time `gorm:"type:date" json:"date_of_birth,omitempty"`
	ContactNumber string     `gorm:"type:varchar(30)" json:"contact_number,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (PatientProfile) TableName() string {
	return "patient_profiles"
}
