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

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/tally"
	"github.com/jerry-enebeli/tally/internal/apierror"
)

var sentinelCodes = []struct {
	err  error
	code apierror.ErrorCode
}{
	{tally.ErrAlreadyConfirmed, apierror.ErrAlreadyConfirmed},
	{tally.ErrJobBusy, apierror.ErrJobBusy},
	{tally.ErrJobNotReady, apierror.ErrJobNotReady},
	{tally.ErrVoucherConflict, apierror.ErrVoucherConflict},
	{tally.ErrLedgerWrite, apierror.ErrLedgerWrite},
}

// toAPIError turns an engine error into the error body the API returns.
func toAPIError(err error) apierror.APIError {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var locked *tally.PeriodLockedError
	if errors.As(err, &locked) {
		return apierror.NewAPIError(apierror.ErrPeriodLocked, err.Error(), gin.H{
			"months": locked.Months,
			"rows":   locked.Rows,
		})
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return apierror.NewAPIError(s.code, err.Error(), nil)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "an internal error occurred", nil)
}

func respondError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil))
}
