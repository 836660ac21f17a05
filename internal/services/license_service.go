// internal/services/license_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/metrics"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

// CertificatePayload carries a base64 document. A missing file is reported
// as a malformed document by the reconciler, not as a validation error.
type CertificatePayload struct {
	File       string `json:"file"`
	Validation bool   `json:"validation"`
}

type CreateLicenseRequest struct {
	UserID      uuid.UUID           `json:"user_id" validate:"required"`
	TypeID      uuid.UUID           `json:"type_id" validate:"required"`
	StartDate   string              `json:"start_date" validate:"required,date"`
	EndDate     string              `json:"end_date" validate:"required,date"`
	Information string              `json:"information" validate:"max=5000"`
	Certificate *CertificatePayload `json:"certificate,omitempty"`
}

// UpdateLicenseRequest changes the type only when TypeID is set and the
// dates only when both are set. Information is always replaced.
type UpdateLicenseRequest struct {
	TypeID      *uuid.UUID          `json:"type_id,omitempty"`
	StartDate   string              `json:"start_date,omitempty" validate:"omitempty,date"`
	EndDate     string              `json:"end_date,omitempty" validate:"omitempty,date"`
	Information string              `json:"information" validate:"max=5000"`
	Certificate *CertificatePayload `json:"certificate,omitempty"`
}

type AddCertificateRequest struct {
	Certificate *CertificatePayload `json:"certificate"`
}

func (r *AddCertificateRequest) file() string {
	if r.Certificate == nil {
		return ""
	}
	return r.Certificate.File
}

type EvaluateLicenseRequest struct {
	LicenseStatus          models.StatusName `json:"license_status" validate:"required"`
	EvaluationComment      string            `json:"evaluation_comment" validate:"max=2000"`
	OtherEvaluationComment string            `json:"other_evaluation_comment" validate:"max=2000"`
}

type LicenseSearchRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	ShowAllUsers bool      `json:"show_all_users"`
	Status       string    `json:"status"`
	EmployeeName string    `json:"employee_name"`
	Type         string    `json:"type"`
	Page         int       `json:"page" validate:"omitempty,min=1"`
	PageSize     int       `json:"page_size" validate:"omitempty,min=1,max=100"`
}

type EvaluationResult struct {
	License   *models.License `json:"license"`
	Evaluator string          `json:"evaluator"`
}

// LicenseNotifier tells the requester about an evaluation outcome.
type LicenseNotifier interface {
	NotifyEvaluation(ctx context.Context, license *models.License) error
}

// TrainingRecorder appends a dataset row for an evaluated license.
type TrainingRecorder interface {
	RecordEvaluation(ctx context.Context, license *models.License) error
}

// CertificateArchiver keeps a copy of accepted certificate documents.
type CertificateArchiver interface {
	ArchiveCertificate(ctx context.Context, certificate *models.Certificate) error
}

type LicenseService struct {
	store          repository.Store
	reconciler     *CertificateReconciler
	notifier       LicenseNotifier
	trainer        TrainingRecorder
	archiver       CertificateArchiver
	genericComment string
	now            func() time.Time
	runAsync       func(func())
}

type LicenseServiceOption func(*LicenseService)

func WithClock(now func() time.Time) LicenseServiceOption {
	return func(s *LicenseService) { s.now = now }
}

// WithSideEffectRunner replaces the goroutine launcher used for post-commit work.
func WithSideEffectRunner(run func(func())) LicenseServiceOption {
	return func(s *LicenseService) { s.runAsync = run }
}

func WithArchiver(archiver CertificateArchiver) LicenseServiceOption {
	return func(s *LicenseService) { s.archiver = archiver }
}

func NewLicenseService(store repository.Store, reconciler *CertificateReconciler, notifier LicenseNotifier, trainer TrainingRecorder, genericComment string, opts ...LicenseServiceOption) *LicenseService {
	s := &LicenseService{
		store:          store,
		reconciler:     reconciler,
		notifier:       notifier,
		trainer:        trainer,
		genericComment: genericComment,
		now:            time.Now,
		runAsync:       func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LicenseService) CreateLicense(ctx context.Context, req *CreateLicenseRequest) (*models.License, error) {
	license, err := s.createLicense(ctx, req)
	s.recordOperation(OperationCreate, err)
	return license, err
}

func (s *LicenseService) createLicense(ctx context.Context, req *CreateLicenseRequest) (*models.License, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindUser(ctx, req.UserID)
	if err != nil {
		return nil, lookupError(err, "user")
	}

	licenseType, err := s.store.FindLicenseType(ctx, req.TypeID)
	if err != nil {
		return nil, lookupError(err, "license type")
	}

	if err := CheckImmediateCertificate(licenseType, req.Certificate != nil); err != nil {
		return nil, err
	}

	var doc *PreparedDocument
	if req.Certificate != nil {
		if doc, err = s.reconciler.Prepare(ctx, req.Certificate.File, OperationCreate); err != nil {
			return nil, err
		}
	}

	now := s.now()
	license := &models.License{
		UserID:      user.ID,
		TypeID:      licenseType.ID,
		Information: req.Information,
		RequestDate: now,
	}
	license.SetDates(start, end)
	license.Type = *licenseType

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.CreateLicense(ctx, license); err != nil {
			return internalError("failed to create license", err)
		}

		if doc != nil {
			if err := s.reconcile(ctx, tx, doc, OperationCreate, license, req.Certificate.Validation, now); err != nil {
				return err
			}
		}

		status := &models.Status{LicenseID: license.ID}
		if err := s.deriveStatus(ctx, tx, license, status, now); err != nil {
			return err
		}
		if err := tx.CreateStatus(ctx, status); err != nil {
			return internalError("failed to create license status", err)
		}
		license.Status = status
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to create license")
	}

	license.User = *user
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id": license.ID,
		"user_id":    user.ID,
		"type":       licenseType.Name,
		"status":     license.Status.Name,
	}).Info("License requested")

	s.archive(ctx, license.ActiveCertificate())
	return license, nil
}

func (s *LicenseService) UpdateLicense(ctx context.Context, id uuid.UUID, req *UpdateLicenseRequest) (*models.License, error) {
	license, err := s.updateLicense(ctx, id, req)
	s.recordOperation(OperationUpdate, err)
	return license, err
}

func (s *LicenseService) updateLicense(ctx context.Context, id uuid.UUID, req *UpdateLicenseRequest) (*models.License, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	datesGiven := req.StartDate != "" && req.EndDate != ""
	var start, end time.Time
	if datesGiven {
		var err error
		if start, end, err = parseDateRange(req.StartDate, req.EndDate); err != nil {
			return nil, err
		}
	}

	var doc *PreparedDocument
	if req.Certificate != nil {
		var err error
		if doc, err = s.reconciler.Prepare(ctx, req.Certificate.File, OperationUpdate); err != nil {
			return nil, err
		}
	}

	now := s.now()
	var license *models.License
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if license, err = tx.FindLicense(ctx, id, true); err != nil {
			return lookupError(err, "license")
		}

		if req.TypeID != nil {
			licenseType, err := tx.FindLicenseType(ctx, *req.TypeID)
			if err != nil {
				return lookupError(err, "license type")
			}
			license.TypeID = licenseType.ID
			license.Type = *licenseType
		}

		if datesGiven {
			license.SetDates(start, end)
		}
		license.Information = req.Information

		if err := tx.SaveLicense(ctx, license); err != nil {
			return internalError("failed to update license", err)
		}

		if doc != nil {
			if err := s.reconcile(ctx, tx, doc, OperationUpdate, license, req.Certificate.Validation, now); err != nil {
				return err
			}
		}

		status, created, err := s.loadStatus(ctx, tx, license)
		if err != nil {
			return err
		}

		if !CanRederive(status.Name) {
			logger.FromContext(ctx).WithFields(logrus.Fields{
				"license_id": license.ID,
				"status":     status.Name,
			}).Debug("Status is terminal, skipping re-derivation")
			license.Status = status
			return nil
		}

		if err := s.deriveStatus(ctx, tx, license, status, now); err != nil {
			return err
		}
		license.Status = status
		return s.persistStatus(ctx, tx, status, created)
	})
	if err != nil {
		return nil, classify(err, "failed to update license")
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id": license.ID,
		"status":     license.Status.Name,
	}).Info("License updated")

	if doc != nil {
		s.archive(ctx, license.ActiveCertificate())
	}
	return license, nil
}

func (s *LicenseService) AddCertificate(ctx context.Context, id uuid.UUID, req *AddCertificateRequest) (*models.License, error) {
	license, err := s.addCertificate(ctx, id, req)
	s.recordOperation(OperationAddCertificate, err)
	return license, err
}

func (s *LicenseService) addCertificate(ctx context.Context, id uuid.UUID, req *AddCertificateRequest) (*models.License, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	doc, err := s.reconciler.Prepare(ctx, req.file(), OperationAddCertificate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var license *models.License
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if license, err = tx.FindLicense(ctx, id, true); err != nil {
			return lookupError(err, "license")
		}

		if !license.Type.CertificateRequire {
			return newError(KindValidation, "license type %q does not require a certificate", license.Type.Name)
		}

		// Certificates added after the request are never marked as validated.
		if err := s.reconcile(ctx, tx, doc, OperationAddCertificate, license, false, now); err != nil {
			return err
		}

		status, created, err := s.loadStatus(ctx, tx, license)
		if err != nil {
			return err
		}
		license.Status = status
		if !CanRederive(status.Name) {
			return nil
		}
		if err := s.deriveStatus(ctx, tx, license, status, now); err != nil {
			return err
		}
		return s.persistStatus(ctx, tx, status, created)
	})
	if err != nil {
		return nil, classify(err, "failed to add certificate")
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id":     license.ID,
		"certificate_id": license.Certificate.ID,
	}).Info("Certificate added to license")

	s.archive(ctx, license.ActiveCertificate())
	return license, nil
}

func (s *LicenseService) EvaluateLicense(ctx context.Context, id, evaluatorID uuid.UUID, req *EvaluateLicenseRequest) (*EvaluationResult, error) {
	result, err := s.evaluateLicense(ctx, id, evaluatorID, req)
	s.recordOperation("evaluate", err)
	return result, err
}

func (s *LicenseService) evaluateLicense(ctx context.Context, id, evaluatorID uuid.UUID, req *EvaluateLicenseRequest) (*EvaluationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := ValidateEvaluationTarget(req.LicenseStatus); err != nil {
		return nil, err
	}

	evaluator, err := s.store.FindUser(ctx, evaluatorID)
	if err != nil {
		return nil, lookupError(err, "evaluator")
	}

	now := s.now()
	var license *models.License
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if license, err = tx.FindLicense(ctx, id, true); err != nil {
			return lookupError(err, "license")
		}

		status, created, err := s.loadStatus(ctx, tx, license)
		if err != nil {
			return err
		}
		if err := CheckEvaluable(status, created); err != nil {
			return err
		}

		ApplyEvaluation(status, req.LicenseStatus, req.EvaluationComment, req.OtherEvaluationComment, now)
		if err := s.persistStatus(ctx, tx, status, created); err != nil {
			return err
		}

		closing := truncateToDate(now)
		license.ClosingDate = &closing
		license.EvaluatorID = &evaluator.ID
		if err := tx.SaveLicense(ctx, license); err != nil {
			return internalError("failed to update license", err)
		}

		license.Status = status
		license.Evaluator = evaluator
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to evaluate license")
	}

	metrics.LicenseEvaluations.WithLabelValues(string(req.LicenseStatus)).Inc()
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id":   license.ID,
		"status":       req.LicenseStatus,
		"comment":      req.EvaluationComment,
		"evaluator_id": evaluator.ID,
	}).Info("License evaluated")

	if req.LicenseStatus.Terminal() {
		if s.notifier != nil {
			s.afterCommit(ctx, "notification", func(ctx context.Context) error {
				return s.notifier.NotifyEvaluation(ctx, license)
			})
		}
		if s.trainer != nil && s.shouldRecordTraining(license) {
			s.afterCommit(ctx, "dataset", func(ctx context.Context) error {
				return s.trainer.RecordEvaluation(ctx, license)
			})
		}
	}

	return &EvaluationResult{License: license, Evaluator: evaluator.FullName()}, nil
}

func (s *LicenseService) DeleteLicense(ctx context.Context, id uuid.UUID) error {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		license, err := tx.FindLicense(ctx, id, true)
		if err != nil {
			return lookupError(err, "license")
		}
		license.MarkDeleted(s.now())
		if err := tx.SaveLicense(ctx, license); err != nil {
			return internalError("failed to delete license", err)
		}
		return nil
	})
	s.recordOperation("delete", err)
	if err != nil {
		return classify(err, "failed to delete license")
	}

	logger.FromContext(ctx).WithField("license_id", id).Info("License deleted")
	return nil
}

func (s *LicenseService) GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error) {
	license, err := s.store.FindLicense(ctx, id, false)
	if err != nil {
		return nil, lookupError(err, "license")
	}
	return license, nil
}

// SearchLicenses lists licenses visible to the requesting user.
func (s *LicenseService) SearchLicenses(ctx context.Context, req *LicenseSearchRequest) (*utils.PaginationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	params := utils.NewPaginationParams(req.Page, req.PageSize)

	filter, err := s.visibleLicenses(ctx, req)
	if err != nil {
		return nil, err
	}
	filter.Offset = params.Offset()
	filter.Limit = params.Limit

	licenses, total, err := s.store.ListLicenses(ctx, filter)
	if err != nil {
		return nil, internalError("failed to list licenses", err)
	}

	result := utils.CreatePaginationResult(licenses, total, params)
	return &result, nil
}

// ExportLicenses returns every license visible to the requesting user.
func (s *LicenseService) ExportLicenses(ctx context.Context, req *LicenseSearchRequest) ([]models.License, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	filter, err := s.visibleLicenses(ctx, req)
	if err != nil {
		return nil, err
	}

	licenses, _, err := s.store.ListLicenses(ctx, filter)
	if err != nil {
		return nil, internalError("failed to list licenses", err)
	}
	return licenses, nil
}

func (s *LicenseService) ListLicenseTypes(ctx context.Context) ([]models.LicenseType, error) {
	types, err := s.store.ListLicenseTypes(ctx)
	if err != nil {
		return nil, internalError("failed to list license types", err)
	}
	return types, nil
}

// visibleLicenses scopes a search by the requester's role: employees and
// analysts see their own licenses, supervisors and admins see everyone's
// only when asked to, any other role sees nothing.
func (s *LicenseService) visibleLicenses(ctx context.Context, req *LicenseSearchRequest) (repository.LicenseFilter, error) {
	requester, err := s.store.FindUser(ctx, req.UserID)
	if err != nil {
		return repository.LicenseFilter{}, lookupError(err, "user")
	}

	filter := repository.LicenseFilter{
		EmployeeName: strings.TrimSpace(req.EmployeeName),
		TypeName:     req.Type,
	}

	if status := models.StatusName(strings.ToLower(req.Status)); status.Valid() {
		filter.Status = status
	}

	switch requester.Role {
	case models.UserRoleEmployee, models.UserRoleAnalyst:
		filter.OwnerID = &requester.ID
	case models.UserRoleSupervisor, models.UserRoleAdmin:
		if !req.ShowAllUsers {
			filter.OwnerID = &requester.ID
		}
	default:
		filter.MatchNone = true
	}

	return filter, nil
}

func (s *LicenseService) reconcile(ctx context.Context, tx repository.Store, doc *PreparedDocument, op Operation, license *models.License, validation bool, now time.Time) error {
	resolution, err := s.reconciler.Resolve(ctx, tx, doc, op, license)
	if err != nil {
		return err
	}
	_, err = s.reconciler.Attach(ctx, tx, resolution, doc, license, validation, now)
	return err
}

// deriveStatus sets status from the license type and certificate, dropping a
// certificate the type does not require.
func (s *LicenseService) deriveStatus(ctx context.Context, tx repository.Store, license *models.License, status *models.Status, now time.Time) error {
	derivation := DeriveStatus(&license.Type, license.ActiveCertificate() != nil)
	if derivation.DropCertificate {
		certificate := license.ActiveCertificate()
		certificate.MarkDeleted(now)
		if err := tx.SaveCertificate(ctx, certificate); err != nil {
			return internalError("failed to remove certificate", err)
		}
		logger.FromContext(ctx).WithFields(logrus.Fields{
			"license_id":     license.ID,
			"certificate_id": certificate.ID,
		}).Info("Certificate removed, license type does not require one")
	}
	status.Name = derivation.Status
	return nil
}

// loadStatus returns the license status row, building a pending one when
// the license has none yet.
func (s *LicenseService) loadStatus(ctx context.Context, tx repository.Store, license *models.License) (*models.Status, bool, error) {
	status, err := tx.FindStatus(ctx, license.ID)
	if err == nil {
		return status, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, internalError("failed to load license status", err)
	}
	return &models.Status{LicenseID: license.ID, Name: models.StatusPending}, true, nil
}

func (s *LicenseService) persistStatus(ctx context.Context, tx repository.Store, status *models.Status, created bool) error {
	var err error
	if created {
		err = tx.CreateStatus(ctx, status)
	} else {
		err = tx.SaveStatus(ctx, status)
	}
	if err != nil {
		return internalError("failed to save license status", err)
	}
	return nil
}

func (s *LicenseService) shouldRecordTraining(license *models.License) bool {
	certificate := license.ActiveCertificate()
	if !license.Type.CertificateRequire || certificate == nil || certificate.File == "" {
		return false
	}
	comment := strings.TrimSpace(license.Status.EvaluationComment)
	return !strings.EqualFold(comment, s.genericComment)
}

func (s *LicenseService) archive(ctx context.Context, certificate *models.Certificate) {
	if s.archiver == nil || certificate == nil {
		return
	}
	s.afterCommit(ctx, "storage", func(ctx context.Context) error {
		return s.archiver.ArchiveCertificate(ctx, certificate)
	})
}

// afterCommit runs fn outside the request lifecycle. Failures are logged and
// counted, never returned.
func (s *LicenseService) afterCommit(ctx context.Context, collaborator string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.runAsync(func() {
		if err := fn(ctx); err != nil {
			metrics.CollaboratorFailures.WithLabelValues(collaborator).Inc()
			logger.FromContext(ctx).WithError(err).WithField("collaborator", collaborator).Warn("Post-commit side effect failed")
		}
	})
}

func (s *LicenseService) recordOperation(op Operation, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(KindOf(err)))
	}
	metrics.LicenseOperations.WithLabelValues(string(op), result).Inc()
}

func parseDateRange(startValue, endValue string) (time.Time, time.Time, error) {
	start, err := time.Parse(utils.DateLayout, startValue)
	if err != nil {
		return time.Time{}, time.Time{}, newError(KindValidation, "start_date must use the YYYY-MM-DD format")
	}
	end, err := time.Parse(utils.DateLayout, endValue)
	if err != nil {
		return time.Time{}, time.Time{}, newError(KindValidation, "end_date must use the YYYY-MM-DD format")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, newError(KindValidation, "end_date cannot be before start_date")
	}
	return start, end, nil
}

func validateRequest(req interface{}) error {
	err := utils.ValidateStruct(req)
	if err == nil {
		return nil
	}

	var messages []string
	for _, validationErr := range utils.GetValidationErrors(err) {
		messages = append(messages, validationErr.Message)
	}
	if len(messages) == 0 {
		messages = append(messages, err.Error())
	}
	return &ServiceError{Kind: KindValidation, Message: strings.Join(messages, "; "), Err: err}
}

func lookupError(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "%s not found", resource)
	}
	return internalError("failed to load "+resource, err)
}

// classify passes service errors through and wraps anything else as internal.
func classify(err error, message string) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	return internalError(message, err)
}
