/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", apierror.NewAPIError(apierror.ErrNotFound, "missing", nil))
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
	assert.False(t, apierror.HasCode(err, apierror.ErrConflict))
	assert.False(t, apierror.HasCode(errors.New("plain"), apierror.ErrNotFound))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"NotFound Error", apierror.NewAPIError(apierror.ErrNotFound, "Resource not found", nil), http.StatusNotFound},
		{"Conflict Error", apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil), http.StatusConflict},
		{"InvalidInput Error", apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil), http.StatusBadRequest},
		{"AlreadyConfirmed", apierror.NewAPIError(apierror.ErrAlreadyConfirmed, "confirmed", nil), http.StatusConflict},
		{"JobBusy", apierror.NewAPIError(apierror.ErrJobBusy, "busy", nil), http.StatusConflict},
		{"PeriodLocked", apierror.NewAPIError(apierror.ErrPeriodLocked, "locked", nil), http.StatusLocked},
		{"JobNotReady", apierror.NewAPIError(apierror.ErrJobNotReady, "not ready", nil), http.StatusUnprocessableEntity},
		{"VoucherConflict", apierror.NewAPIError(apierror.ErrVoucherConflict, "moved", nil), http.StatusConflict},
		{"LedgerWrite", apierror.NewAPIError(apierror.ErrLedgerWrite, "retry", nil), http.StatusServiceUnavailable},
		{"Wrapped", fmt.Errorf("ctx: %w", apierror.NewAPIError(apierror.ErrNotFound, "x", nil)), http.StatusNotFound},
		{"InternalServerError", apierror.NewAPIError(apierror.ErrInternalServer, "Internal server error", nil), http.StatusInternalServerError},
		{"Unknown Error", errors.New("Unknown error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
