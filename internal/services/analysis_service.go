// internal/services/analysis_service.go
package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/metrics"
	"github.com/javajoker/healthfirst-backend/internal/repository"
)

type AnalyzeCertificateRequest struct {
	LicenseID  uuid.UUID `json:"license_id" validate:"required"`
	FileBase64 string    `json:"file_base64" validate:"required"`
}

// CertificateAnalysis carries the approval score only for scored groups.
type CertificateAnalysis struct {
	*ApprovalScore
	LicenseTypes []LicenseTypePrediction `json:"license_types"`
	Scored       bool                    `json:"scored"`
}

// AnalysisService scores an uploaded certificate against a license.
type AnalysisService struct {
	store        repository.Store
	extractor    TextExtractor
	scorer       Scorer
	scoredGroups map[string]bool
	codedGroup   string
}

func NewAnalysisService(store repository.Store, extractor TextExtractor, scorer Scorer, scoredGroups []string, codedGroup string) *AnalysisService {
	groups := make(map[string]bool, len(scoredGroups))
	for _, group := range scoredGroups {
		groups[strings.ToLower(strings.TrimSpace(group))] = true
	}
	return &AnalysisService{
		store:        store,
		extractor:    extractor,
		scorer:       scorer,
		scoredGroups: groups,
		codedGroup:   codedGroup,
	}
}

func (s *AnalysisService) AnalyzeCertificate(ctx context.Context, req *AnalyzeCertificateRequest) (*CertificateAnalysis, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	license, err := s.store.FindLicense(ctx, req.LicenseID, false)
	if err != nil {
		return nil, lookupError(err, "license")
	}

	data, err := DecodeDocument(req.FileBase64)
	if err != nil {
		return nil, err
	}
	text, err := s.extractor.ExtractText(ctx, data)
	if err != nil {
		return nil, &ServiceError{Kind: KindMalformedDocument, Message: "could not read the certificate text", Err: err}
	}

	types, err := s.store.ListLicenseTypes(ctx)
	if err != nil {
		return nil, internalError("failed to list license types", err)
	}
	candidates := make([]string, 0, len(types))
	for _, t := range types {
		candidates = append(candidates, t.Name)
	}

	predictions, err := s.scorer.PredictLicenseTypes(ctx, text, candidates)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("scoring").Inc()
		return nil, internalError("license type prediction failed", err)
	}
	analysis := &CertificateAnalysis{LicenseTypes: predictions}

	group := license.Type.Group
	if s.scoredGroups[strings.ToLower(group)] {
		score, err := s.scorer.ScoreForApproval(ctx, text, group)
		if err != nil {
			metrics.CollaboratorFailures.WithLabelValues("scoring").Inc()
			return nil, internalError("certificate scoring failed", err)
		}
		if !strings.EqualFold(group, s.codedGroup) {
			score.HasCode = nil
		}
		analysis.ApprovalScore = score
		analysis.Scored = true
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id": license.ID,
		"group":      group,
		"scored":     analysis.Scored,
	}).Info("Certificate analyzed")

	return analysis, nil
}
