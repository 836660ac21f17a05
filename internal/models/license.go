// internal/models/license.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CertificateCodePrefix precedes the sequence value printed on pre-issued forms.
const CertificateCodePrefix = "HFCOD"

type LicenseType struct {
	BaseModel
	Name                 string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Group                string `json:"group" gorm:"size:50;not null;index"`
	CertificateRequire   bool   `json:"certificate_require" gorm:"default:false"`
	ImmediateCertificate bool   `json:"immediate_certificate" gorm:"default:false"`
	IsDeleted            bool   `json:"-" gorm:"default:false;index"`
}

// RequiresImmediateCertificate is true for types that cannot be requested
// without a certificate attached at creation time.
func (t *LicenseType) RequiresImmediateCertificate() bool {
	return t.CertificateRequire && t.ImmediateCertificate
}

type License struct {
	BaseModel
	UserID       uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	TypeID       uuid.UUID  `json:"type_id" gorm:"type:uuid;not null;index"`
	StartDate    time.Time  `json:"start_date" gorm:"type:date;not null;index"`
	EndDate      time.Time  `json:"end_date" gorm:"type:date;not null"`
	RequiredDays int        `json:"required_days" gorm:"not null"`
	Information  string     `json:"information" gorm:"type:text"`
	RequestDate  time.Time  `json:"request_date" gorm:"not null"`
	ClosingDate  *time.Time `json:"closing_date" gorm:"type:date"`
	EvaluatorID  *uuid.UUID `json:"evaluator_id" gorm:"type:uuid;index"`
	SoftDelete

	// Relationships
	User        User         `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Type        LicenseType  `json:"type,omitempty" gorm:"foreignKey:TypeID"`
	Evaluator   *User        `json:"evaluator,omitempty" gorm:"foreignKey:EvaluatorID"`
	Certificate *Certificate `json:"certificate,omitempty" gorm:"foreignKey:LicenseID"`
	Status      *Status      `json:"status,omitempty" gorm:"foreignKey:LicenseID"`
}

// SetDates stores the span and recomputes required days; callers validate ordering.
func (l *License) SetDates(start, end time.Time) {
	l.StartDate = start
	l.EndDate = end
	l.RequiredDays = RequiredDays(start, end)
}

// ActiveCertificate returns the attached certificate unless it was soft-deleted.
func (l *License) ActiveCertificate() *Certificate {
	if l.Certificate == nil || l.Certificate.IsDeleted {
		return nil
	}
	return l.Certificate
}

// RequiredDays is the inclusive day span between two calendar dates.
func RequiredDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

type Certificate struct {
	BaseModel
	Code       *int64     `json:"code,omitempty" gorm:"index"`
	LicenseID  *uuid.UUID `json:"license_id" gorm:"type:uuid;index"`
	File       string     `json:"file,omitempty" gorm:"type:text"`
	FileHash   string     `json:"file_hash,omitempty" gorm:"size:64"`
	Validation bool       `json:"validation" gorm:"default:false"`
	UploadDate time.Time  `json:"upload_date"`
	SoftDelete
}

// IsCoded reports whether the certificate was pre-issued with a business code.
func (c *Certificate) IsCoded() bool {
	return c.Code != nil
}

func (c *Certificate) DisplayCode() string {
	if c.Code == nil {
		return ""
	}
	return FormatCertificateCode(*c.Code)
}

func FormatCertificateCode(code int64) string {
	return fmt.Sprintf("%s%d", CertificateCodePrefix, code)
}

type Status struct {
	BaseModel
	LicenseID              uuid.UUID  `json:"license_id" gorm:"type:uuid;not null;uniqueIndex"`
	Name                   StatusName `json:"name" gorm:"type:varchar(20);not null;default:'pending';index"`
	EvaluationDate         *time.Time `json:"evaluation_date" gorm:"type:date"`
	EvaluationComment      string     `json:"evaluation_comment" gorm:"type:text"`
	OtherEvaluationComment string     `json:"other_evaluation_comment" gorm:"type:text"`
}

// LicenseDatasetEntry is a training row for the approval model.
type LicenseDatasetEntry struct {
	BaseModel
	Text   string     `json:"text" gorm:"type:text;not null"`
	Type   string     `json:"type" gorm:"size:50;not null;index"`
	Status StatusName `json:"status" gorm:"type:varchar(20);not null"`
	Reason string     `json:"reason" gorm:"type:text"`
}
