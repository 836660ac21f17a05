// internal/services/certificate_reconciler.go
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/metrics"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

// Operation names the license operation a certificate upload belongs to.
type Operation string

const (
	OperationCreate         Operation = "create"
	OperationUpdate         Operation = "update"
	OperationAddCertificate Operation = "add_certificate"
)

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimePDF  = "application/pdf"
)

// DocumentInspector is what the reconciler needs from the document toolkit.
type DocumentInspector interface {
	SniffMIME(data []byte) string
	ConvertImageToPDF(data []byte) ([]byte, error)
	ExtractEmbeddedCode(data []byte) (int64, bool)
}

// ConversionPolicy says, per operation, whether JPEG/PNG uploads are stored
// as single-page PDFs. Add-certificate has historically stored images as-is.
type ConversionPolicy struct {
	OnCreate         bool
	OnUpdate         bool
	OnAddCertificate bool
}

func (p ConversionPolicy) Converts(op Operation) bool {
	switch op {
	case OperationCreate:
		return p.OnCreate
	case OperationUpdate:
		return p.OnUpdate
	case OperationAddCertificate:
		return p.OnAddCertificate
	}
	return false
}

// PreparedDocument is an upload that passed decoding and type checks.
// Code is extracted from Original; Encoded is built from Normalized.
type PreparedDocument struct {
	Original   []byte
	Normalized []byte
	MIMEType   string
	Code       *int64
	Encoded    string
	Hash       string
}

func (d *PreparedDocument) IsImage() bool {
	return d.MIMEType == mimeJPEG || d.MIMEType == mimePNG
}

// Resolution is the certificate record an upload will be written into.
type Resolution struct {
	Certificate *models.Certificate
	Created     bool
}

type CertificateReconciler struct {
	inspector DocumentInspector
	policy    ConversionPolicy
	maxBytes  int
}

func NewCertificateReconciler(inspector DocumentInspector, policy ConversionPolicy, maxBytes int) *CertificateReconciler {
	return &CertificateReconciler{
		inspector: inspector,
		policy:    policy,
		maxBytes:  maxBytes,
	}
}

// Prepare decodes, type-checks and normalises an upload. It touches no
// storage and runs before the enclosing transaction is opened.
func (r *CertificateReconciler) Prepare(ctx context.Context, encoded string, op Operation) (*PreparedDocument, error) {
	original, err := DecodeDocument(encoded)
	if err != nil {
		r.record(op, KindMalformedDocument)
		return nil, err
	}

	if r.maxBytes > 0 && len(original) > r.maxBytes {
		r.record(op, KindValidation)
		return nil, newError(KindValidation, "certificate file exceeds %d bytes", r.maxBytes)
	}

	mimeType := baseMIME(r.inspector.SniffMIME(original))
	if mimeType != mimeJPEG && mimeType != mimePNG && mimeType != mimePDF {
		r.record(op, KindUnsupportedFileType)
		return nil, newError(KindUnsupportedFileType, "file type %s is not allowed, only JPG, PNG or PDF", mimeType)
	}

	doc := &PreparedDocument{
		Original:   original,
		Normalized: original,
		MIMEType:   mimeType,
	}

	converted := doc.IsImage() && r.policy.Converts(op)
	if converted {
		pdf, err := r.inspector.ConvertImageToPDF(original)
		if err != nil {
			r.record(op, KindMalformedDocument)
			return nil, &ServiceError{Kind: KindMalformedDocument, Message: "image could not be converted to PDF", Err: err}
		}
		doc.Normalized = pdf
	}

	if code, ok := r.inspector.ExtractEmbeddedCode(original); ok {
		doc.Code = &code
	}

	doc.Encoded = base64.StdEncoding.EncodeToString(doc.Normalized)
	doc.Hash = utils.HashBytes(doc.Normalized)

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"operation": op,
		"document":  describeDocument(doc),
		"converted": converted,
	}).Debug("Certificate document prepared")

	return doc, nil
}

// Resolve decides which certificate record doc belongs to for license. It
// must run inside the transaction that will persist the result; the coded
// lookup locks the certificate row.
func (r *CertificateReconciler) Resolve(ctx context.Context, store repository.Store, doc *PreparedDocument, op Operation, license *models.License) (*Resolution, error) {
	resolution, err := r.resolve(ctx, store, doc, op, license)
	if err != nil {
		r.record(op, KindOf(err))
		return nil, err
	}

	outcome := "reused"
	if resolution.Created {
		outcome = "created"
	}
	metrics.CertificateReconciliations.WithLabelValues(string(op), outcome).Inc()
	return resolution, nil
}

func (r *CertificateReconciler) resolve(ctx context.Context, store repository.Store, doc *PreparedDocument, op Operation, license *models.License) (*Resolution, error) {
	current := license.ActiveCertificate()

	if op == OperationAddCertificate && current != nil {
		return nil, newError(KindValidation, "license already has a certificate")
	}

	if doc.Code == nil {
		if op == OperationUpdate && current != nil {
			if current.IsCoded() {
				return nil, newError(KindCodeMismatch,
					"certificate %s cannot be replaced by a document without code", current.DisplayCode())
			}
			return &Resolution{Certificate: current}, nil
		}
		return &Resolution{Certificate: &models.Certificate{}, Created: true}, nil
	}

	code := *doc.Code
	found, err := store.FindCertificateByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindUnknownCertificateCode, "certificate code %s does not exist", models.FormatCertificateCode(code))
		}
		return nil, internalError("failed to look up certificate code", err)
	}

	if found.LicenseID != nil && *found.LicenseID != license.ID {
		return nil, newError(KindCertificateAlreadyUsed, "certificate %s was already used", models.FormatCertificateCode(code))
	}

	if op == OperationUpdate {
		if current == nil {
			return nil, newError(KindNoCurrentCertificate, "license has no current certificate to validate code %s against", models.FormatCertificateCode(code))
		}
		if !current.IsCoded() || *current.Code != code {
			return nil, newError(KindCodeMismatch, "certificate code %s does not match the current certificate", models.FormatCertificateCode(code))
		}
	}

	return &Resolution{Certificate: found}, nil
}

// Attach writes doc into the resolved record and links it to license.
func (r *CertificateReconciler) Attach(ctx context.Context, store repository.Store, resolution *Resolution, doc *PreparedDocument, license *models.License, validation bool, now time.Time) (*models.Certificate, error) {
	certificate := resolution.Certificate
	certificate.LicenseID = &license.ID
	certificate.File = doc.Encoded
	certificate.FileHash = doc.Hash
	certificate.Validation = validation
	certificate.UploadDate = now
	certificate.Restore()

	var err error
	if resolution.Created {
		err = store.CreateCertificate(ctx, certificate)
	} else {
		err = store.SaveCertificate(ctx, certificate)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &ServiceError{Kind: KindCertificateAlreadyUsed, Message: "certificate was claimed by a concurrent request", Err: err}
		}
		return nil, internalError("failed to save certificate", err)
	}

	license.Certificate = certificate
	return certificate, nil
}

func (r *CertificateReconciler) record(op Operation, kind ErrorKind) {
	metrics.CertificateReconciliations.WithLabelValues(string(op), strings.ToLower(string(kind))).Inc()
}

// DecodeDocument decodes a base64 payload, tolerating a data-URL prefix and
// unpadded input.
func DecodeDocument(encoded string) ([]byte, error) {
	payload := strings.TrimSpace(encoded)
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	if payload == "" {
		return nil, newError(KindMalformedDocument, "certificate file is missing")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, &ServiceError{Kind: KindMalformedDocument, Message: "certificate file is not valid base64", Err: err}
	}
	if len(data) == 0 {
		return nil, newError(KindMalformedDocument, "certificate file is empty")
	}
	return data, nil
}

func baseMIME(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}

func describeDocument(doc *PreparedDocument) string {
	if doc.Code != nil {
		return fmt.Sprintf("%s (%s)", doc.MIMEType, models.FormatCertificateCode(*doc.Code))
	}
	return doc.MIMEType
}
