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

type AuditAction string

const (
	AuditUploadConfirm      AuditAction = "upload.confirm"
	AuditVoucherCreate      AuditAction = "voucher.create"
	AuditVoucherUpdate      AuditAction = "voucher.update"
	AuditPeriodLock         AuditAction = "period.lock"
	AuditPeriodUnlock       AuditAction = "period.unlock"
	AuditCounterpartyCreate AuditAction = "counterparty.create"
	AuditCounterpartyAlias  AuditAction = "counterparty.alias"
)

const (
	AuditTargetJob          = "upload_job"
	AuditTargetVoucher      = "voucher"
	AuditTargetPeriod       = "period"
	AuditTargetCounterparty = "counterparty"
)

// AuditLogEntry is an immutable record of an operator or engine action.
type AuditLogEntry struct {
	LogID      string                 `json:"log_id"`
	Action     AuditAction            `json:"action"`
	Actor      string                 `json:"actor"`
	TargetType string                 `json:"target_type"`
	TargetID   string                 `json:"target_id"`
	JobID      *string                `json:"job_id,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewAuditLogEntry stamps a new entry with an id and the current time.
func NewAuditLogEntry(action AuditAction, actor, targetType, targetID string, detail map[string]interface{}) AuditLogEntry {
	return AuditLogEntry{
		LogID:      GenerateUUIDWithSuffix("audit"),
		Action:     action,
		Actor:      actor,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
}
