// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyError         = "error"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"
	KeyAuthForbidden    = "auth.forbidden"

	// Licenses
	KeyLicenseCreated          = "license.created"
	KeyLicenseUpdated          = "license.updated"
	KeyLicenseDeleted          = "license.deleted"
	KeyLicenseEvaluated        = "license.evaluated"
	KeyLicenseCertificateAdded = "license.certificate_added"
	KeyLicenseNotFound         = "license.not_found"
	KeyLicenseInvalidState     = "license.invalid_evaluation_state"
	KeyLicenseImmediateCert    = "license.immediate_certificate_required"

	// Certificates
	KeyCertificateMalformed    = "certificate.malformed"
	KeyCertificateUnsupported  = "certificate.unsupported_type"
	KeyCertificateUnknownCode  = "certificate.unknown_code"
	KeyCertificateAlreadyUsed  = "certificate.already_used"
	KeyCertificateCodeMismatch = "certificate.code_mismatch"
	KeyCertificateNoCurrent    = "certificate.no_current"
	KeyCertificateNotFound     = "certificate.not_found"

	// Validation
	KeyValidationInvalid = "validation.invalid"
	KeyResourceNotFound  = "resource.not_found"

	// Export headers
	KeyExportLicenseID   = "export.license_id"
	KeyExportUsername    = "export.username"
	KeyExportFullName    = "export.full_name"
	KeyExportType        = "export.type"
	KeyExportStartDate   = "export.start_date"
	KeyExportEndDate     = "export.end_date"
	KeyExportDays        = "export.days"
	KeyExportStatus      = "export.status"
	KeyExportInformation = "export.information"
	KeyExportEvaluator   = "export.evaluator"
	KeyExportSheet       = "export.sheet"

	// Notifications
	KeyNotificationApprovedTitle   = "notification.approved_title"
	KeyNotificationApprovedMessage = "notification.approved_message"
	KeyNotificationRejectedTitle   = "notification.rejected_title"
	KeyNotificationRejectedMessage = "notification.rejected_message"
)
