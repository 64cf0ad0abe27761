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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a sales or purchase entry recorded in the ledger.
type Voucher struct {
	VoucherID      string          `json:"voucher_id"`
	Kind           JobKind         `json:"kind"`
	CounterpartyID string          `json:"counterparty_id"`
	TradeDate      time.Time       `json:"trade_date"`
	VoucherNo      string          `json:"voucher_no"`
	ItemName       string          `json:"item_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	SupplyAmount   decimal.Decimal `json:"supply_amount"`
	VatAmount      decimal.Decimal `json:"vat_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Memo           string          `json:"memo"`
	Version        int64           `json:"version"`
	SourceJobID    *string         `json:"source_job_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// YearMonth returns the period the voucher is booked in.
func (v Voucher) YearMonth() YearMonth {
	return YearMonthOf(v.TradeDate)
}

// NaturalKey returns the key that identifies the voucher across uploads.
func (v Voucher) NaturalKey() NaturalKey {
	return NaturalKey{Kind: v.Kind, CounterpartyID: v.CounterpartyID, TradeDate: v.TradeDate, VoucherNo: v.VoucherNo}
}

// ApplyEntry copies the comparable fields of an entry onto the voucher.
func (v *Voucher) ApplyEntry(e VoucherEntry) {
	v.TradeDate = e.TradeDate
	v.VoucherNo = e.VoucherNo
	v.ItemName = e.ItemName
	v.Quantity = e.Quantity
	v.UnitPrice = e.UnitPrice
	v.SupplyAmount = e.SupplyAmount
	v.VatAmount = e.VatAmount
	v.TotalAmount = e.TotalAmount
	v.Memo = e.Memo
}

// NaturalKey is kind + counterparty + trade date + voucher number.
type NaturalKey struct {
	Kind           JobKind
	CounterpartyID string
	TradeDate      time.Time
	VoucherNo      string
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Kind, k.CounterpartyID, k.TradeDate.Format("2006-01-02"), k.VoucherNo)
}
