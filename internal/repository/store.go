// internal/repository/store.go
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/javajoker/healthfirst-backend/internal/models"
)

// Store is the persistence boundary of the license services. Lookups return
// gorm.ErrRecordNotFound (possibly wrapped) when nothing matches.
type Store interface {
	// Transaction runs fn against a Store bound to one database transaction.
	// Any error returned by fn rolls back every write made through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindLicenseType(ctx context.Context, id uuid.UUID) (*models.LicenseType, error)
	ListLicenseTypes(ctx context.Context) ([]models.LicenseType, error)

	// FindLicense loads a non-deleted license with its user, type, status,
	// evaluator and active certificate. forUpdate locks the license row.
	FindLicense(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.License, error)
	CreateLicense(ctx context.Context, license *models.License) error
	SaveLicense(ctx context.Context, license *models.License) error
	ListLicenses(ctx context.Context, filter LicenseFilter) ([]models.License, int64, error)

	// FindCertificateByCode locks and returns the certificate carrying code,
	// whether or not it is soft-deleted.
	FindCertificateByCode(ctx context.Context, code int64) (*models.Certificate, error)
	FindCertificate(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	CreateCertificate(ctx context.Context, certificate *models.Certificate) error
	SaveCertificate(ctx context.Context, certificate *models.Certificate) error
	NextCertificateCode(ctx context.Context) (int64, error)

	FindStatus(ctx context.Context, licenseID uuid.UUID) (*models.Status, error)
	CreateStatus(ctx context.Context, status *models.Status) error
	SaveStatus(ctx context.Context, status *models.Status) error

	CreateDatasetEntry(ctx context.Context, entry *models.LicenseDatasetEntry) error
	CreateNotification(ctx context.Context, notification *models.Notification) error
}

// LicenseFilter narrows ListLicenses. Zero values mean "no restriction",
// except Limit where zero returns every matching row.
type LicenseFilter struct {
	OwnerID      *uuid.UUID
	MatchNone    bool
	Status       models.StatusName
	TypeName     string
	EmployeeName string
	Offset       int
	Limit        int
}
