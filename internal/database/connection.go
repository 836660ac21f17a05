// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/models"
)

// CertificateCodeSequence issues the numbers printed on pre-issued certificate forms.
const CertificateCodeSequence = "certificate_code_seq"

func Initialize(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithFields(logrus.Fields{"host": cfg.Host, "database": cfg.Database}).Info("Database connection established")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB, log *logrus.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
	} else {
		log.Info("Database connection closed")
	}
}

func RunMigrations(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	// gen_random_uuid() lives in pgcrypto on older servers
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.LicenseType{},
		&models.License{},
		&models.Certificate{},
		&models.Status{},
		&models.LicenseDatasetEntry{},
		&models.AuditLog{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.Exec(fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", CertificateCodeSequence)).Error; err != nil {
		return fmt.Errorf("failed to create certificate code sequence: %w", err)
	}

	// The two partial unique indexes back the reconciliation rules when
	// concurrent requests race past the row locks.
	constraints := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_certificates_code ON certificates(code) WHERE code IS NOT NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_certificates_active_license ON certificates(license_id) WHERE is_deleted = false AND license_id IS NOT NULL",
	}
	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create constraint %q: %w", stmt, err)
		}
	}

	createIndexes(db, log)

	log.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB, log *logrus.Logger) {
	indexes := []string{
		// License indexes
		"CREATE INDEX IF NOT EXISTS idx_licenses_user_start ON licenses(user_id, start_date DESC)",
		"CREATE INDEX IF NOT EXISTS idx_licenses_active_start ON licenses(start_date DESC) WHERE is_deleted = false",
		"CREATE INDEX IF NOT EXISTS idx_statuses_name ON statuses(name)",

		// Dataset indexes
		"CREATE INDEX IF NOT EXISTS idx_license_dataset_entries_type_status ON license_dataset_entries(type, status)",

		// Admin indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_user_status ON notifications(user_id, status)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			log.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// DefaultLicenseTypes is the reference data seeded into an empty database.
var DefaultLicenseTypes = []models.LicenseType{
	{Name: "Enfermedad", Group: "enfermedad", CertificateRequire: true, ImmediateCertificate: false},
	{Name: "Accidente laboral", Group: "enfermedad", CertificateRequire: true, ImmediateCertificate: true},
	{Name: "Examen", Group: "estudio", CertificateRequire: true, ImmediateCertificate: false},
	{Name: "Maternidad", Group: "familia", CertificateRequire: true, ImmediateCertificate: true},
	{Name: "Paternidad", Group: "familia", CertificateRequire: true, ImmediateCertificate: false},
	{Name: "Mudanza", Group: "tramite", CertificateRequire: false, ImmediateCertificate: false},
	{Name: "Vacaciones", Group: "vacaciones", CertificateRequire: false, ImmediateCertificate: false},
}

// Seed initial data
func SeedInitialData(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Seeding initial data...")

	var adminCount int64
	db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount)

	if adminCount == 0 {
		admin := &models.User{
			Username:  "admin",
			Email:     "admin@healthfirst.com",
			FirstName: "System",
			LastName:  "Administrator",
			Role:      models.UserRoleAdmin,
		}
		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		log.Info("Default admin user created")
	}

	for _, licenseType := range DefaultLicenseTypes {
		var count int64
		db.Model(&models.LicenseType{}).Where("name = ?", licenseType.Name).Count(&count)
		if count > 0 {
			continue
		}

		licenseType := licenseType
		if err := db.Create(&licenseType).Error; err != nil {
			log.WithError(err).WithField("license_type", licenseType.Name).Warn("Failed to create license type")
		}
	}

	log.Info("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
