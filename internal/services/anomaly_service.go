// internal/services/anomaly_service.go
package services

import (
	"context"
	"strings"

	"github.com/javajoker/healthfirst-backend/internal/metrics"
)

type AnomalyQuery struct {
	StartDate string `form:"start_date" validate:"omitempty,date"`
	EndDate   string `form:"end_date" validate:"omitempty,date"`
	SubjectID string `form:"-"`
	IsAnomaly string `form:"is_anomaly"`
	Limit     int    `form:"limit" validate:"omitempty,min=0,max=500"`
	Offset    int    `form:"offset" validate:"omitempty,min=0"`
}

type AnomalyPage struct {
	Count   int             `json:"count"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset"`
	Results []AnomalyRecord `json:"results"`
}

// AnomalyService filters and pages anomaly reports produced by the
// scoring service.
type AnomalyService struct {
	reporter AnomalyReporter
}

func NewAnomalyService(reporter AnomalyReporter) *AnomalyService {
	return &AnomalyService{reporter: reporter}
}

func (s *AnomalyService) SupervisorAnomalies(ctx context.Context, query *AnomalyQuery) (*AnomalyPage, error) {
	if err := validateRequest(query); err != nil {
		return nil, err
	}

	records, err := s.reporter.SupervisorAnomalies(ctx, query.StartDate, query.EndDate)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("anomalies").Inc()
		return nil, internalError("failed to load supervisor anomalies", err)
	}

	return paginateAnomalies(filterAnomalies(records, "evaluator_id", query, false), query), nil
}

func (s *AnomalyService) EmployeeAnomalies(ctx context.Context, query *AnomalyQuery) (*AnomalyPage, error) {
	if err := validateRequest(query); err != nil {
		return nil, err
	}

	records, err := s.reporter.EmployeeAnomalies(ctx, query.StartDate, query.EndDate)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("anomalies").Inc()
		return nil, internalError("failed to load employee anomalies", err)
	}

	return paginateAnomalies(filterAnomalies(records, "employee_id", query, true), query), nil
}

func filterAnomalies(records []AnomalyRecord, subjectKey string, query *AnomalyQuery, requireActivity bool) []AnomalyRecord {
	flag, filterFlag := parseAnomalyFlag(query.IsAnomaly)

	filtered := make([]AnomalyRecord, 0, len(records))
	for _, record := range records {
		if requireActivity && record.Get("total_requests").Int() <= 0 {
			continue
		}
		if query.SubjectID != "" && record.Get(subjectKey).String() != query.SubjectID {
			continue
		}
		if filterFlag && record.Get("is_anomaly").Bool() != flag {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

// parseAnomalyFlag reads true/1/yes and false/0/no; anything else disables
// the filter.
func parseAnomalyFlag(value string) (flag bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

func paginateAnomalies(records []AnomalyRecord, query *AnomalyQuery) *AnomalyPage {
	page := &AnomalyPage{
		Count:   len(records),
		Limit:   query.Limit,
		Offset:  query.Offset,
		Results: []AnomalyRecord{},
	}

	if query.Offset >= len(records) {
		return page
	}
	end := len(records)
	if query.Limit > 0 && query.Offset+query.Limit < end {
		end = query.Offset + query.Limit
	}
	page.Results = records[query.Offset:end]
	return page
}
