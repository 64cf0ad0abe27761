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

package database

import (
	"database/sql"
	"errors"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/lib/pq"
)

// mapError converts driver errors into API errors. what names the entity
// in the returned message.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, what+" not found", err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, what+" already exists", err)
		case "foreign_key_violation":
			return apierror.NewAPIError(apierror.ErrInvalidInput, what+" references a missing record", err)
		default:
			return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to access "+what, err)
}

// IsUniqueViolation reports whether err is a postgres unique_violation,
// directly or after mapError.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrConflict {
		return true
	}
	return false
}
