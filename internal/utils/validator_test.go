package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type datedRequest struct {
	StartDate string `validate:"required,date"`
	EndDate   string `validate:"omitempty,date"`
	PageSize  int    `validate:"omitempty,max=100"`
}

func TestValidateStructDateRule(t *testing.T) {
	assert.NoError(t, ValidateStruct(&datedRequest{StartDate: "2025-02-28"}))
	assert.NoError(t, ValidateStruct(&datedRequest{StartDate: "2024-02-29", EndDate: "2024-03-01"}))

	err := ValidateStruct(&datedRequest{StartDate: "2025-02-30"})
	require.Error(t, err)

	errs := GetValidationErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "startdate", errs[0].Field)
	assert.Equal(t, "date", errs[0].Tag)
	assert.Equal(t, "StartDate must be a date in YYYY-MM-DD format", errs[0].Message)
}

func TestGetValidationErrorsMessages(t *testing.T) {
	err := ValidateStruct(&datedRequest{EndDate: "14/03/2025", PageSize: 500})
	errs := GetValidationErrors(err)
	require.Len(t, errs, 3)

	byTag := map[string]string{}
	for _, e := range errs {
		byTag[e.Tag] = e.Message
	}
	assert.Equal(t, "StartDate is required", byTag["required"])
	assert.Equal(t, "EndDate must be a date in YYYY-MM-DD format", byTag["date"])
	assert.Equal(t, "PageSize must be at most 100", byTag["max"])
}

func TestGetValidationErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Empty(t, GetValidationErrors(assert.AnError))
}
