// internal/services/license_status.go
package services

import (
	"time"

	"github.com/javajoker/healthfirst-backend/internal/models"
)

// StatusDerivation is the outcome of re-deriving a license status after its
// certificate was handled.
type StatusDerivation struct {
	Status models.StatusName
	// DropCertificate is set when the type no longer requires a certificate
	// but one is attached; the caller soft-deletes it.
	DropCertificate bool
}

// DeriveStatus maps certificate requirement and presence to a status.
func DeriveStatus(licenseType *models.LicenseType, hasCertificate bool) StatusDerivation {
	switch {
	case !licenseType.CertificateRequire:
		return StatusDerivation{Status: models.StatusPending, DropCertificate: hasCertificate}
	case !hasCertificate:
		return StatusDerivation{Status: models.StatusMissingDoc}
	default:
		return StatusDerivation{Status: models.StatusPending}
	}
}

// CanRederive reports whether an update may recompute the status. Evaluated
// licenses keep their outcome even when type, dates or certificate change.
func CanRederive(current models.StatusName) bool {
	return !current.Terminal()
}

// CheckImmediateCertificate rejects a create without certificate for types
// that need one at request time.
func CheckImmediateCertificate(licenseType *models.LicenseType, hasCertificate bool) error {
	if licenseType.RequiresImmediateCertificate() && !hasCertificate {
		return newError(KindImmediateCertificateRequired,
			"license type %q requires a certificate at request time", licenseType.Name)
	}
	return nil
}

// ValidateEvaluationTarget accepts the statuses a supervisor may set.
func ValidateEvaluationTarget(target models.StatusName) error {
	switch target {
	case models.StatusApproved, models.StatusRejected, models.StatusMissingDoc:
		return nil
	}
	return newError(KindValidation, "invalid license status %q, must be approved, rejected or missing_doc", target)
}

// CheckEvaluable allows evaluation of pending licenses and of licenses whose
// status row was only just created.
func CheckEvaluable(status *models.Status, created bool) error {
	if created || status.Name == models.StatusPending {
		return nil
	}
	return newError(KindInvalidEvaluationState, "license could not be evaluated, current status: %q", status.Name)
}

// ApplyEvaluation records the evaluation on status. day is truncated to a date.
func ApplyEvaluation(status *models.Status, target models.StatusName, comment, otherComment string, day time.Time) {
	evaluated := truncateToDate(day)
	status.Name = target
	status.EvaluationDate = &evaluated
	status.EvaluationComment = comment
	status.OtherEvaluationComment = otherComment
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
