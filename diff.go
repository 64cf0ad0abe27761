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

package tally

import (
	"github.com/jerry-enebeli/tally/model"
	"github.com/shopspring/decimal"
)

// comparableField reads one field from the existing voucher and the incoming entry.
type comparableField struct {
	name    string
	text    func(model.Voucher, model.VoucherEntry) (string, string)
	decimal func(model.Voucher, model.VoucherEntry) (decimal.Decimal, decimal.Decimal)
}

// comparableFields are listed in the order diffs are reported.
var comparableFields = []comparableField{
	{name: "item_name", text: func(v model.Voucher, e model.VoucherEntry) (string, string) { return v.ItemName, e.ItemName }},
	{name: "quantity", decimal: func(v model.Voucher, e model.VoucherEntry) (decimal.Decimal, decimal.Decimal) { return v.Quantity, e.Quantity }},
	{name: "unit_price", decimal: func(v model.Voucher, e model.VoucherEntry) (decimal.Decimal, decimal.Decimal) { return v.UnitPrice, e.UnitPrice }},
	{name: "supply_amount", decimal: func(v model.Voucher, e model.VoucherEntry) (decimal.Decimal, decimal.Decimal) { return v.SupplyAmount, e.SupplyAmount }},
	{name: "vat_amount", decimal: func(v model.Voucher, e model.VoucherEntry) (decimal.Decimal, decimal.Decimal) { return v.VatAmount, e.VatAmount }},
	{name: "total_amount", decimal: func(v model.Voucher, e model.VoucherEntry) (decimal.Decimal, decimal.Decimal) { return v.TotalAmount, e.TotalAmount }},
	{name: "memo", text: func(v model.Voucher, e model.VoucherEntry) (string, string) { return v.Memo, e.Memo }},
}

// DiffVoucher lists the comparable fields whose values differ between the
// stored voucher and the incoming entry. Amounts compare by value, so 1000
// and 1000.00 are equal. The result is empty, never nil, when nothing differs.
func DiffVoucher(existing model.Voucher, entry model.VoucherEntry) []model.FieldDiff {
	diffs := []model.FieldDiff{}
	for _, f := range comparableFields {
		if f.text != nil {
			oldValue, newValue := f.text(existing, entry)
			if oldValue != newValue {
				diffs = append(diffs, model.FieldDiff{Field: f.name, OldValue: oldValue, NewValue: newValue})
			}
			continue
		}
		oldValue, newValue := f.decimal(existing, entry)
		if !oldValue.Equal(newValue) {
			diffs = append(diffs, model.FieldDiff{Field: f.name, OldValue: oldValue.String(), NewValue: newValue.String()})
		}
	}
	return diffs
}
