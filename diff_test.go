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
	"testing"

	"github.com/jerry-enebeli/tally/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDiffVoucher(t *testing.T) {
	existing := model.Voucher{
		ItemName:     "widget",
		Quantity:     decimal.NewFromInt(2),
		UnitPrice:    decimal.NewFromInt(500),
		SupplyAmount: decimal.NewFromInt(1000),
		VatAmount:    decimal.NewFromInt(100),
		TotalAmount:  decimal.NewFromInt(1100),
		Memo:         "march",
	}
	same := model.VoucherEntry{
		ItemName:     "widget",
		Quantity:     decimal.RequireFromString("2.0"),
		UnitPrice:    decimal.RequireFromString("500.00"),
		SupplyAmount: decimal.RequireFromString("1000.00"),
		VatAmount:    decimal.NewFromInt(100),
		TotalAmount:  decimal.RequireFromString("1100.000"),
		Memo:         "march",
	}

	t.Run("equal values in different notation", func(t *testing.T) {
		diff := DiffVoucher(existing, same)
		assert.NotNil(t, diff)
		assert.Empty(t, diff)
	})

	t.Run("fields reported in fixed order", func(t *testing.T) {
		changed := same
		changed.Memo = "april"
		changed.ItemName = "gadget"
		changed.VatAmount = decimal.NewFromInt(90)
		changed.TotalAmount = decimal.NewFromInt(1090)

		assert.Equal(t, []model.FieldDiff{
			{Field: "item_name", OldValue: "widget", NewValue: "gadget"},
			{Field: "vat_amount", OldValue: "100", NewValue: "90"},
			{Field: "total_amount", OldValue: "1100", NewValue: "1090"},
			{Field: "memo", OldValue: "march", NewValue: "april"},
		}, DiffVoucher(existing, changed))
	})

	t.Run("text compares exactly", func(t *testing.T) {
		changed := same
		changed.ItemName = "Widget"
		diff := DiffVoucher(existing, changed)
		assert.Len(t, diff, 1)
		assert.Equal(t, "item_name", diff[0].Field)
	})
}
