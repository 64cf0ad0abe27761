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

package model

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jerry-enebeli/tally/model"
)

const maxBatchSize = 500

var yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// BatchDeleteJobs is the body of POST /uploads/batch-delete.
type BatchDeleteJobs struct {
	JobIDs []string `json:"job_ids"`
}

// NewCounterparty is one name picked from the unmatched list.
type NewCounterparty struct {
	Name string                 `json:"name"`
	Type model.CounterpartyType `json:"type"`
}

// BatchCreateCounterparties is the body of POST /counterparties/batch.
type BatchCreateCounterparties struct {
	Counterparties []NewCounterparty `json:"counterparties"`
}

// MapAlias is the body of POST /counterparties/:id/aliases.
type MapAlias struct {
	Alias string `json:"alias"`
}

// CreateLock is the body of POST /period-locks.
type CreateLock struct {
	YearMonth   string `json:"year_month"`
	Description string `json:"description"`
}

// ReleaseLock is the body of POST /period-locks/:year_month/release.
type ReleaseLock struct {
	Reason string `json:"reason"`
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func (b *BatchDeleteJobs) ValidateBatchDeleteJobs() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.JobIDs, validation.Required, validation.Length(1, maxBatchSize), validation.Each(validation.By(notBlank))),
	)
}

func (n NewCounterparty) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.By(notBlank), validation.Length(1, 200)),
		validation.Field(&n.Type, validation.Required, validation.In(model.CounterpartyCustomer, model.CounterpartyVendor, model.CounterpartyBoth)),
	)
}

func (b *BatchCreateCounterparties) ValidateBatchCreateCounterparties() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Counterparties, validation.Required, validation.Length(1, maxBatchSize)),
	)
}

// ToNames converts the request into the engine's input.
func (b *BatchCreateCounterparties) ToNames() []model.NewCounterpartyName {
	names := make([]model.NewCounterpartyName, len(b.Counterparties))
	for i, c := range b.Counterparties {
		names[i] = model.NewCounterpartyName{Name: c.Name, Type: c.Type}
	}
	return names
}

func (m *MapAlias) ValidateMapAlias() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Alias, validation.By(notBlank), validation.Length(1, 200)),
	)
}

func (l *CreateLock) ValidateCreateLock() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.YearMonth, validation.Required, validation.Match(yearMonthPattern).Error("must be in the form YYYY-MM")),
		validation.Field(&l.Description, validation.Length(0, 500)),
	)
}

func (r *ReleaseLock) ValidateReleaseLock() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reason, validation.By(notBlank), validation.Length(1, 500)),
	)
}
