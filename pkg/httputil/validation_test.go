package httputil

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier/production-backend/pkg/errors"
)

type allocateBody struct {
	MaterialRef string          `json:"material_ref" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

func TestValidate_DecimalQuantities(t *testing.T) {
	require.NoError(t, Validate(&allocateBody{MaterialRef: "SON-118", Quantity: decimal.RequireFromString("2.5")}))

	err := Validate(&allocateBody{MaterialRef: "SON-118", Quantity: decimal.Zero})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, "must be greater than 0", appErr.Details["Quantity"])
}

func TestValidate_Required(t *testing.T) {
	err := Validate(&allocateBody{Quantity: decimal.NewFromInt(1)})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "this field is required", appErr.Details["MaterialRef"])
}
