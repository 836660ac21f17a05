// internal/services/dataset_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
)

// TextExtractor reads the text of a certificate document.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// DatasetService appends training rows for the approval model.
type DatasetService struct {
	store     repository.Store
	extractor TextExtractor
}

var _ TrainingRecorder = (*DatasetService)(nil)

func NewDatasetService(store repository.Store, extractor TextExtractor) *DatasetService {
	return &DatasetService{store: store, extractor: extractor}
}

func (s *DatasetService) RecordEvaluation(ctx context.Context, license *models.License) error {
	certificate := license.ActiveCertificate()
	if certificate == nil || certificate.File == "" {
		return fmt.Errorf("license %s has no certificate to learn from", license.ID)
	}
	if license.Status == nil {
		return fmt.Errorf("license %s has no status", license.ID)
	}

	data, err := DecodeDocument(certificate.File)
	if err != nil {
		return err
	}
	text, err := s.extractor.ExtractText(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to extract certificate text: %w", err)
	}

	entry := &models.LicenseDatasetEntry{
		Text:   NormalizeText(text),
		Type:   license.Type.Group,
		Status: license.Status.Name,
		Reason: strings.ToLower(license.Status.EvaluationComment),
	}
	if err := s.store.CreateDatasetEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to store dataset entry: %w", err)
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id": license.ID,
		"group":      entry.Type,
		"status":     entry.Status,
	}).Debug("Dataset entry recorded")
	return nil
}

// NormalizeText lower-cases text, strips accents and collapses whitespace.
func NormalizeText(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
