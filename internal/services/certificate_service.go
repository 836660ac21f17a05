// internal/services/certificate_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/metrics"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
)

const certificateDownloadExpiry = 15 * time.Minute

// FormRenderer prints the pre-issued certificate form.
type FormRenderer interface {
	RenderCodedForm(code int64) ([]byte, error)
}

// CertificatePresigner hands out temporary links to archived certificates.
type CertificatePresigner interface {
	IsConfigured() bool
	IsArchived(ctx context.Context, certificate *models.Certificate) (bool, error)
	PresignCertificate(ctx context.Context, certificate *models.Certificate, expiry time.Duration) (string, error)
}

type IssuedForm struct {
	Certificate *models.Certificate
	Code        string
	PDF         []byte
}

// StoredDocument is a certificate file decoded for download.
type StoredDocument struct {
	Data     []byte
	MIMEType string
}

type CertificateService struct {
	store     repository.Store
	renderer  FormRenderer
	presigner CertificatePresigner
	inspector DocumentInspector
	now       func() time.Time
}

func NewCertificateService(store repository.Store, renderer FormRenderer, presigner CertificatePresigner, inspector DocumentInspector) *CertificateService {
	return &CertificateService{
		store:     store,
		renderer:  renderer,
		presigner: presigner,
		inspector: inspector,
		now:       time.Now,
	}
}

// IssueCode reserves the next certificate code, stores an unattached coded
// certificate and returns the printable form.
func (s *CertificateService) IssueCode(ctx context.Context) (*IssuedForm, error) {
	var form *IssuedForm
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		code, err := tx.NextCertificateCode(ctx)
		if err != nil {
			return internalError("failed to reserve certificate code", err)
		}

		certificate := &models.Certificate{
			Code:       &code,
			UploadDate: s.now(),
		}
		if err := tx.CreateCertificate(ctx, certificate); err != nil {
			return internalError("failed to create certificate", err)
		}

		pdf, err := s.renderer.RenderCodedForm(code)
		if err != nil {
			return internalError("failed to render certificate form", err)
		}

		form = &IssuedForm{
			Certificate: certificate,
			Code:        certificate.DisplayCode(),
			PDF:         pdf,
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to issue certificate code")
	}

	metrics.CertificateCodesIssued.Inc()
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"certificate_id": form.Certificate.ID,
		"code":           form.Code,
	}).Info("Certificate code issued")

	return form, nil
}

// CertificateDownload is either a presigned link to the archived copy or
// the stored bytes.
type CertificateDownload struct {
	URL      string
	Document *StoredDocument
}

// Owner returns the user whose license holds the certificate.
func (s *CertificateService) Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	certificate, err := s.activeCertificate(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if certificate.LicenseID == nil {
		return uuid.Nil, newError(KindNotFound, "certificate not found")
	}

	license, err := s.store.FindLicense(ctx, *certificate.LicenseID, false)
	if err != nil {
		return uuid.Nil, lookupError(err, "certificate")
	}
	return license.UserID, nil
}

// Download presigns the archived copy when one exists and otherwise serves
// the bytes kept in the database.
func (s *CertificateService) Download(ctx context.Context, id uuid.UUID) (*CertificateDownload, error) {
	certificate, err := s.activeCertificate(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.presigner != nil && s.presigner.IsConfigured() {
		archived, err := s.presigner.IsArchived(ctx, certificate)
		if err != nil {
			metrics.CollaboratorFailures.WithLabelValues("storage").Inc()
			logger.FromContext(ctx).WithError(err).WithField("certificate_id", id).Warn("Archive lookup failed, serving stored copy")
		}
		if archived {
			url, err := s.presigner.PresignCertificate(ctx, certificate, certificateDownloadExpiry)
			if err != nil {
				return nil, internalError("failed to generate download link", err)
			}
			return &CertificateDownload{URL: url}, nil
		}
	}

	doc, err := s.document(certificate)
	if err != nil {
		return nil, err
	}
	return &CertificateDownload{Document: doc}, nil
}

func (s *CertificateService) document(certificate *models.Certificate) (*StoredDocument, error) {
	data, err := DecodeDocument(certificate.File)
	if err != nil {
		return nil, internalError("stored certificate is unreadable", err)
	}
	return &StoredDocument{Data: data, MIMEType: baseMIME(s.inspector.SniffMIME(data))}, nil
}

func (s *CertificateService) activeCertificate(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	certificate, err := s.store.FindCertificate(ctx, id)
	if err != nil {
		return nil, lookupError(err, "certificate")
	}
	if certificate.IsDeleted || certificate.File == "" {
		return nil, newError(KindNotFound, "certificate not found")
	}
	return certificate, nil
}
