package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReporter struct {
	supervisors []AnomalyRecord
	employees   []AnomalyRecord
	err         error
}

func (r stubReporter) SupervisorAnomalies(ctx context.Context, startDate, endDate string) ([]AnomalyRecord, error) {
	return r.supervisors, r.err
}

func (r stubReporter) EmployeeAnomalies(ctx context.Context, startDate, endDate string) ([]AnomalyRecord, error) {
	return r.employees, r.err
}

func anomalyFixture() stubReporter {
	return stubReporter{
		supervisors: []AnomalyRecord{
			NewAnomalyRecord(`{"evaluator_id": "s1", "is_anomaly": true, "approval_rate": 0.99}`),
			NewAnomalyRecord(`{"evaluator_id": "s2", "is_anomaly": false}`),
			NewAnomalyRecord(`{"evaluator_id": "s3", "is_anomaly": true}`),
		},
		employees: []AnomalyRecord{
			NewAnomalyRecord(`{"employee_id": "e1", "total_requests": 3, "is_anomaly": 1}`),
			NewAnomalyRecord(`{"employee_id": "e2", "total_requests": 0, "is_anomaly": 1}`),
			NewAnomalyRecord(`{"employee_id": "e3", "total_requests": 8, "is_anomaly": 0}`),
		},
	}
}

func TestSupervisorAnomalyFilters(t *testing.T) {
	service := NewAnomalyService(anomalyFixture())
	ctx := context.Background()

	page, err := service.SupervisorAnomalies(ctx, &AnomalyQuery{IsAnomaly: "yes"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)

	page, err = service.SupervisorAnomalies(ctx, &AnomalyQuery{IsAnomaly: "maybe"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)

	page, err = service.SupervisorAnomalies(ctx, &AnomalyQuery{SubjectID: "s2"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.False(t, page.Results[0].Get("is_anomaly").Bool())
}

func TestEmployeeAnomaliesDropInactive(t *testing.T) {
	service := NewAnomalyService(anomalyFixture())

	page, err := service.EmployeeAnomalies(context.Background(), &AnomalyQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)

	page, err = service.EmployeeAnomalies(context.Background(), &AnomalyQuery{IsAnomaly: "false"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "e3", page.Results[0].Get("employee_id").String())
}

func TestAnomalyPagination(t *testing.T) {
	service := NewAnomalyService(anomalyFixture())
	ctx := context.Background()

	page, err := service.SupervisorAnomalies(ctx, &AnomalyQuery{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "s2", page.Results[0].Get("evaluator_id").String())

	page, err = service.SupervisorAnomalies(ctx, &AnomalyQuery{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)
}

func TestAnomalyErrors(t *testing.T) {
	_, err := NewAnomalyService(stubReporter{err: errors.New("timeout")}).EmployeeAnomalies(context.Background(), &AnomalyQuery{})
	assert.Equal(t, KindInternal, KindOf(err))

	_, err = NewAnomalyService(anomalyFixture()).EmployeeAnomalies(context.Background(), &AnomalyQuery{StartDate: "01/02/2025"})
	assert.Equal(t, KindValidation, KindOf(err))
}
