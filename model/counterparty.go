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

import "time"

type CounterpartyType string

const (
	CounterpartyCustomer CounterpartyType = "customer"
	CounterpartyVendor   CounterpartyType = "vendor"
	CounterpartyBoth     CounterpartyType = "both"
)

func (t CounterpartyType) Valid() bool {
	return t == CounterpartyCustomer || t == CounterpartyVendor || t == CounterpartyBoth
}

type Counterparty struct {
	CounterpartyID string           `json:"counterparty_id"`
	Name           string           `json:"name"`
	Type           CounterpartyType `json:"type"`
	Aliases        []string         `json:"aliases,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// CounterpartyAlias maps one alternate spelling to exactly one counterparty.
type CounterpartyAlias struct {
	Alias          string    `json:"alias"`
	CounterpartyID string    `json:"counterparty_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewCounterpartyName is one entry of a batch registration request.
type NewCounterpartyName struct {
	Name string           `json:"name"`
	Type CounterpartyType `json:"type"`
}

// SkippedCounterparty records why a batch registration entry created nothing.
type SkippedCounterparty struct {
	Name           string `json:"name"`
	Reason         string `json:"reason"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
}

type BatchCounterpartyResult struct {
	Created      []Counterparty        `json:"created"`
	Skipped      []SkippedCounterparty `json:"skipped"`
	CreatedCount int                   `json:"created_count"`
	SkippedCount int                   `json:"skipped_count"`
}
