package store

import (
	"time"
)

// Accreditation status values for centers and programs.
const (
	AccreditationActive    = "active"
	AccreditationInactive  = "inactive"
	AccreditationSuspended = "suspended"
)

// Certificate status values.
const (
	CertificateValid     = "valid"
	CertificateExpired   = "expired"
	CertificateSuspended = "suspended"
)

// TrainingCenter is an organization accredited to run training programs.
type TrainingCenter struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"not null;index" json:"name"`
	NameKey             string    `gorm:"not null;default:''" json:"-"`
	Country             string    `gorm:"not null" json:"country"`
	City                *string   `json:"city"`
	Website             *string   `json:"website"`
	AccreditationStatus string    `gorm:"not null;index" json:"accreditation_status"`
	AccreditationDate   Date      `json:"accreditation_date"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TrainingProgram is an accredited program run by exactly one center.
type TrainingProgram struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	ProgramName         string    `gorm:"not null" json:"program_name"`
	ProgramCode         string    `gorm:"not null" json:"program_code"`
	CenterID            uint      `gorm:"not null;index" json:"center_id"`
	AccreditationStatus string    `gorm:"not null;index" json:"accreditation_status"`
	AccreditationDate   Date      `json:"accreditation_date"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Certificate is issued to a holder for completing a program. CenterID is
// stored independently of the program's center and is not cross-checked.
// The *Key columns hold case-folded copies used for matching.
type Certificate struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CertificateNumber string    `gorm:"uniqueIndex;not null" json:"certificate_number"`
	HolderName        string    `gorm:"not null" json:"holder_name"`
	NumberKey         string    `gorm:"not null;default:''" json:"-"`
	HolderNameKey     string    `gorm:"not null;default:''" json:"-"`
	ProgramID         uint      `gorm:"not null;index" json:"program_id"`
	CenterID          uint      `gorm:"not null;index" json:"center_id"`
	IssueDate         Date      `gorm:"not null;index" json:"issue_date"`
	ExpiryDate        *Date     `json:"expiry_date"`
	Status            string    `gorm:"not null" json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AccreditationStandard is static reference data.
type AccreditationStandard struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	StandardName string `gorm:"uniqueIndex;not null" json:"standard_name"`
	Category     string `gorm:"not null" json:"category"`
	Description  string `json:"description"`
}

// AdminUser is a back office account.
type AdminUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FullName     string     `json:"full_name"`
	Role         string     `gorm:"not null" json:"role"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AdminSession is a login session. It is valid while ExpiresAt lies in the
// future and its admin is active.
type AdminSession struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AdminID      uint      `gorm:"not null;index" json:"admin_id"`
	SessionToken string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActiveSession is a live session joined to its admin.
type ActiveSession struct {
	SessionID uint      `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	AdminID   uint      `json:"admin_id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
}

// CertificateRecord is a certificate joined with its program and center.
type CertificateRecord struct {
	ID                uint   `json:"id"`
	CertificateNumber string `json:"certificate_number"`
	HolderName        string `json:"holder_name"`
	ProgramID         uint   `json:"program_id"`
	CenterID          uint   `json:"center_id"`
	IssueDate         Date   `json:"issue_date"`
	ExpiryDate        *Date  `json:"expiry_date"`
	Status            string `json:"status"`
	ProgramName       string `json:"program_name"`
	ProgramCode       string `json:"program_code"`
	TrainingCenter    string `json:"training_center"`
	Country           string `json:"country"`
}

// ProgramRecord is a program with its center's name.
type ProgramRecord struct {
	TrainingProgram
	CenterName string `json:"center_name"`
}

// CenterOption is a minimal center projection for selection lists.
type CenterOption struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}
