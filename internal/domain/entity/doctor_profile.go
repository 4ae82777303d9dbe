package entity

import "github.com/google/uuid"

// DoctorProfile represents doctor-specific directory data
type DoctorProfile struct {
	UserID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Specialty       string    `gorm:"type:varchar(50);not null;index" json:"specialty"`
	ExperienceYears int       `gorm:"not null;default:0" json:"experience_years"`
	City            string    `gorm:"type:varchar(100);not null" json:"city"`
	State           string    `gorm:"type:varchar(100);not null" json:"state"`
	ContactNumber   string    `gorm:"type:varchar(30);not null" json:"contact_number"`
	IsVerified      bool      `gorm:"not null;default:false" json:"is_verified"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (DoctorProfile) TableName() string {
	return "doctor_profiles"
}

// DisplayName is how the doctor appears in notifications
func (d *DoctorProfile) DisplayName() string {
	return "Dr. " + d.User.FullName()
}
