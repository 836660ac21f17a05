// internal/repository/gorm_store.go
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/healthfirst-backend/internal/database"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) FindLicenseType(ctx context.Context, id uuid.UUID) (*models.LicenseType, error) {
	var licenseType models.LicenseType
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&licenseType).Error; err != nil {
		return nil, err
	}
	return &licenseType, nil
}

func (s *GormStore) ListLicenseTypes(ctx context.Context) ([]models.LicenseType, error) {
	var types []models.LicenseType
	err := s.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("name ASC").
		Find(&types).Error
	return types, err
}

func (s *GormStore) FindLicense(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.License, error) {
	query := s.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var license models.License
	err := query.
		Preload("User").
		Preload("Type").
		Preload("Status").
		Preload("Evaluator").
		Preload("Certificate", "is_deleted = ?", false).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (s *GormStore) CreateLicense(ctx context.Context, license *models.License) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(license).Error
}

func (s *GormStore) SaveLicense(ctx context.Context, license *models.License) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(license).Error
}

func (s *GormStore) ListLicenses(ctx context.Context, filter LicenseFilter) ([]models.License, int64, error) {
	licenses := []models.License{}
	if filter.MatchNone {
		return licenses, 0, nil
	}

	query := s.db.WithContext(ctx).Model(&models.License{}).Where("licenses.is_deleted = ?", false)

	if filter.OwnerID != nil {
		query = query.Where("licenses.user_id = ?", *filter.OwnerID)
	}

	if filter.EmployeeName != "" {
		like := "%" + filter.EmployeeName + "%"
		query = query.Joins("JOIN users ON users.id = licenses.user_id").
			Where("(users.first_name ILIKE ? OR users.last_name ILIKE ?)", like, like)
	}

	if filter.TypeName != "" {
		query = query.Joins("JOIN license_types ON license_types.id = licenses.type_id").
			Where("license_types.name = ?", filter.TypeName)
	}

	if filter.Status != "" {
		query = query.Joins("JOIN statuses ON statuses.license_id = licenses.id").
			Where("statuses.name = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	query = utils.ApplyPagination(query.Order("licenses.start_date DESC"), filter.Offset, filter.Limit)

	err := query.
		Preload("User").
		Preload("Type").
		Preload("Status").
		Preload("Evaluator").
		Find(&licenses).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list licenses: %w", err)
	}

	return licenses, total, nil
}

func (s *GormStore) FindCertificateByCode(ctx context.Context, code int64) (*models.Certificate, error) {
	var certificate models.Certificate
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&certificate).Error
	if err != nil {
		return nil, err
	}
	return &certificate, nil
}

func (s *GormStore) FindCertificate(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	var certificate models.Certificate
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&certificate).Error; err != nil {
		return nil, err
	}
	return &certificate, nil
}

func (s *GormStore) CreateCertificate(ctx context.Context, certificate *models.Certificate) error {
	return s.db.WithContext(ctx).Create(certificate).Error
}

func (s *GormStore) SaveCertificate(ctx context.Context, certificate *models.Certificate) error {
	return s.db.WithContext(ctx).Save(certificate).Error
}

func (s *GormStore) NextCertificateCode(ctx context.Context) (int64, error) {
	var code int64
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT nextval('%s')", database.CertificateCodeSequence)).
		Scan(&code).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read certificate code sequence: %w", err)
	}
	return code, nil
}

func (s *GormStore) FindStatus(ctx context.Context, licenseID uuid.UUID) (*models.Status, error) {
	var status models.Status
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("license_id = ?", licenseID).
		First(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *GormStore) CreateStatus(ctx context.Context, status *models.Status) error {
	return s.db.WithContext(ctx).Create(status).Error
}

func (s *GormStore) SaveStatus(ctx context.Context, status *models.Status) error {
	return s.db.WithContext(ctx).Save(status).Error
}

func (s *GormStore) CreateDatasetEntry(ctx context.Context, entry *models.LicenseDatasetEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return s.db.WithContext(ctx).Create(notification).Error
}

func (s *GormStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
