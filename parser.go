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
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jerry-enebeli/tally/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither csv nor xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

type column string

const (
	colCounterparty column = "counterparty"
	colTradeDate    column = "trade_date"
	colVoucherNo    column = "voucher_no"
	colItemName     column = "item_name"
	colQuantity     column = "quantity"
	colUnitPrice    column = "unit_price"
	colSupplyAmount column = "supply_amount"
	colVatAmount    column = "vat_amount"
	colTotalAmount  column = "total_amount"
	colMemo         column = "memo"
)

var requiredColumns = []column{colCounterparty, colTradeDate, colVoucherNo, colSupplyAmount}

// headerSynonyms maps compacted, lower-cased header text to a column.
var headerSynonyms = map[string]column{
	"거래처": colCounterparty, "거래처명": colCounterparty, "상호": colCounterparty, "업체명": colCounterparty,
	"counterparty": colCounterparty, "customer": colCounterparty, "vendor": colCounterparty, "partner": colCounterparty,

	"일자": colTradeDate, "거래일자": colTradeDate, "거래일": colTradeDate, "전표일자": colTradeDate, "날짜": colTradeDate,
	"date": colTradeDate, "tradedate": colTradeDate, "trade_date": colTradeDate,

	"전표번호": colVoucherNo, "번호": colVoucherNo, "증빙번호": colVoucherNo,
	"voucherno": colVoucherNo, "voucher_no": colVoucherNo, "voucher": colVoucherNo, "invoiceno": colVoucherNo, "no": colVoucherNo, "no.": colVoucherNo,

	"품목": colItemName, "품목명": colItemName, "품명": colItemName,
	"item": colItemName, "itemname": colItemName, "item_name": colItemName,

	"수량": colQuantity, "qty": colQuantity, "quantity": colQuantity,

	"단가": colUnitPrice, "unitprice": colUnitPrice, "unit_price": colUnitPrice, "price": colUnitPrice,

	"공급가액": colSupplyAmount, "공급가": colSupplyAmount,
	"supplyamount": colSupplyAmount, "supply_amount": colSupplyAmount, "amount": colSupplyAmount, "netamount": colSupplyAmount,

	"부가세": colVatAmount, "세액": colVatAmount, "부가가치세": colVatAmount,
	"vat": colVatAmount, "vatamount": colVatAmount, "vat_amount": colVatAmount, "tax": colVatAmount,

	"합계금액": colTotalAmount, "합계": colTotalAmount, "총액": colTotalAmount,
	"total": colTotalAmount, "totalamount": colTotalAmount, "total_amount": colTotalAmount,

	"비고": colMemo, "적요": colMemo, "메모": colMemo, "memo": colMemo, "note": colMemo, "remarks": colMemo,
}

// Summary markers flag subtotal and total lines only when they make up the
// whole key cell, optionally behind a year or month label ("3월 소계",
// "2024년 합계"). Names that merely contain a marker, such as "한국종합계측"
// or "Total Foods", stay ordinary rows.
var (
	koreanSummaryMarker   = regexp.MustCompile(`^(?:\d{4}년)?(?:\d{1,2}월)?(소계|합계|총계|누계)$`)
	englishSummaryMarkers = []string{"total", "subtotal", "grandtotal", "sum"}
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"2006.1.2",
	"20060102",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006년 1월 2일",
	"2006년1월2일",
}

// Excel serial dates are accepted between 1990-01-01 and 2099-12-31, so a
// bare year or day number is not read as a date.
var serialDate = regexp.MustCompile(`^\d{5}(\.\d+)?$`)

const (
	minSerialDate = 32874
	maxSerialDate = 73050
)

// ParsedRow is one non-empty data line of an uploaded sheet.
type ParsedRow struct {
	Index            int
	RawFields        map[string]string
	CounterpartyName string
	TradeDate        *time.Time
	VoucherNo        string
	Entry            *model.VoucherEntry
	ExcludedMarker   string
	Err              string
}

// ParsedSheet is the header and data lines of the first sheet of an upload.
type ParsedSheet struct {
	Headers []string
	Rows    []ParsedRow
}

// ParseOptions bound how much of a file is read.
type ParseOptions struct {
	HeaderScanRows int
	MaxRows        int
}

// ParseSpreadsheet reads a csv or xlsx upload. Problems with single lines are
// reported on the row; a file whose header cannot be found fails as a whole.
func ParseSpreadsheet(fileName string, r io.Reader, opts ParseOptions) (*ParsedSheet, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	var records [][]string
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv":
		records, err = readCSV(payload)
	case ".xlsx", ".xlsm":
		records, err = readExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return buildSheet(records, opts)
}

// SupportedFile reports whether the file extension is one the parser reads.
func SupportedFile(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	// raw values keep dates as serial numbers and amounts unformatted
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func compact(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// detectHeader returns the first row, within the scan window, that names
// every required column.
func detectHeader(records [][]string, scanRows int) (int, map[column]int, error) {
	bestMissing := requiredColumns
	for idx := 0; idx < len(records) && idx < scanRows; idx++ {
		mapping := map[column]int{}
		for i, cell := range records[idx] {
			if col, ok := headerSynonyms[compact(cell)]; ok {
				if _, seen := mapping[col]; !seen {
					mapping[col] = i
				}
			}
		}

		var missing []column
		for _, col := range requiredColumns {
			if _, ok := mapping[col]; !ok {
				missing = append(missing, col)
			}
		}
		if len(missing) == 0 {
			return idx, mapping, nil
		}
		if len(missing) < len(bestMissing) {
			bestMissing = missing
		}
	}

	names := make([]string, len(bestMissing))
	for i, col := range bestMissing {
		names[i] = string(col)
	}
	return 0, nil, fmt.Errorf("header row not found in the first %d rows, missing columns: %s", scanRows, strings.Join(names, ", "))
}

func rawHeaders(row []string) []string {
	headers := make([]string, len(row))
	seen := map[string]int{}
	for i, cell := range row {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		base := name
		if count := seen[base]; count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base]++
		headers[i] = name
	}
	return headers
}

func buildSheet(records [][]string, opts ParseOptions) (*ParsedSheet, error) {
	if len(records) == 0 {
		return nil, errors.New("no rows found in file")
	}

	headerIdx, mapping, err := detectHeader(records, opts.HeaderScanRows)
	if err != nil {
		return nil, err
	}
	headers := rawHeaders(records[headerIdx])

	sheet := &ParsedSheet{Headers: headers, Rows: []ParsedRow{}}
	for _, record := range records[headerIdx+1:] {
		if isEmptyRow(record) {
			continue
		}
		if opts.MaxRows > 0 && len(sheet.Rows) >= opts.MaxRows {
			return nil, fmt.Errorf("file has more than %d data rows", opts.MaxRows)
		}
		sheet.Rows = append(sheet.Rows, parseRow(len(sheet.Rows), headers, mapping, record))
	}
	if len(sheet.Rows) == 0 {
		return nil, errors.New("file has a header but no data rows")
	}
	return sheet, nil
}

// rawVoucher is a data line before any value is converted.
type rawVoucher struct {
	Counterparty string `json:"counterparty"`
	TradeDate    string `json:"trade_date"`
	VoucherNo    string `json:"voucher_no"`
	ItemName     string `json:"item_name"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	SupplyAmount string `json:"supply_amount"`
	VatAmount    string `json:"vat_amount"`
	TotalAmount  string `json:"total_amount"`
	Memo         string `json:"memo"`
}

var (
	dateRule   = validation.By(func(value interface{}) error { _, err := parseTradeDate(value.(string)); return err })
	amountRule = validation.By(func(value interface{}) error {
		if strings.TrimSpace(value.(string)) == "" {
			return nil
		}
		_, err := parseAmount(value.(string))
		return err
	})
)

func (r rawVoucher) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Counterparty, validation.Required.Error("is required")),
		validation.Field(&r.TradeDate, validation.Required.Error("is required"), dateRule),
		validation.Field(&r.VoucherNo, validation.Required.Error("is required")),
		validation.Field(&r.SupplyAmount, validation.Required.Error("is required"), amountRule),
		validation.Field(&r.Quantity, amountRule),
		validation.Field(&r.UnitPrice, amountRule),
		validation.Field(&r.VatAmount, amountRule),
		validation.Field(&r.TotalAmount, amountRule),
	)
}

func parseRow(index int, headers []string, mapping map[column]int, record []string) ParsedRow {
	cell := func(col column) string {
		i, ok := mapping[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := ParsedRow{Index: index, RawFields: make(map[string]string, len(headers))}
	for i, h := range headers {
		if i < len(record) {
			row.RawFields[h] = strings.TrimSpace(record[i])
		} else {
			row.RawFields[h] = ""
		}
	}

	raw := rawVoucher{
		Counterparty: cell(colCounterparty),
		TradeDate:    cell(colTradeDate),
		VoucherNo:    cell(colVoucherNo),
		ItemName:     cell(colItemName),
		Quantity:     cell(colQuantity),
		UnitPrice:    cell(colUnitPrice),
		SupplyAmount: cell(colSupplyAmount),
		VatAmount:    cell(colVatAmount),
		TotalAmount:  cell(colTotalAmount),
		Memo:         cell(colMemo),
	}
	row.CounterpartyName = raw.Counterparty
	row.VoucherNo = raw.VoucherNo
	if d, err := parseTradeDate(raw.TradeDate); err == nil {
		row.TradeDate = &d
	}

	for _, key := range []string{raw.Counterparty, raw.TradeDate, raw.VoucherNo} {
		if marker := summaryMarker(key); marker != "" {
			row.ExcludedMarker = marker
			return row
		}
	}

	if err := raw.Validate(); err != nil {
		row.Err = err.Error()
		return row
	}

	entry, err := raw.entry()
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Entry = entry
	return row
}

func (r rawVoucher) entry() (*model.VoucherEntry, error) {
	amount := func(s string) decimal.Decimal {
		if strings.TrimSpace(s) == "" {
			return decimal.Zero
		}
		d, _ := parseAmount(s)
		return d
	}

	date, _ := parseTradeDate(r.TradeDate)
	e := &model.VoucherEntry{
		CounterpartyName: r.Counterparty,
		TradeDate:        date,
		VoucherNo:        r.VoucherNo,
		ItemName:         r.ItemName,
		Quantity:         amount(r.Quantity),
		UnitPrice:        amount(r.UnitPrice),
		SupplyAmount:     amount(r.SupplyAmount),
		VatAmount:        amount(r.VatAmount),
		TotalAmount:      amount(r.TotalAmount),
		Memo:             r.Memo,
	}

	expected := e.SupplyAmount.Add(e.VatAmount)
	switch {
	case strings.TrimSpace(r.TotalAmount) == "":
		e.TotalAmount = expected
	case strings.TrimSpace(r.VatAmount) != "" && !e.TotalAmount.Equal(expected):
		return nil, fmt.Errorf("total_amount: %s does not equal supply_amount + vat_amount (%s).", e.TotalAmount, expected)
	}
	return e, nil
}

// summaryMarker returns the subtotal marker found in a key cell, if any.
func summaryMarker(cell string) string {
	c := strings.TrimRight(compact(cell), ":：")
	if c == "" {
		return ""
	}
	if m := koreanSummaryMarker.FindStringSubmatch(c); m != nil {
		return m[1]
	}
	for _, m := range englishSummaryMarkers {
		if c == m {
			return m
		}
	}
	return ""
}

func parseTradeDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if serialDate.MatchString(raw) {
		serial, err := strconv.ParseFloat(raw, 64)
		if err == nil && serial >= minSerialDate && serial < maxSerialDate+1 {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
			}
		}
	}
	return time.Time{}, errors.New("is not a valid date")
}

// parseAmount accepts thousand separators, currency symbols and
// parenthesised negatives.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == ',' || unicode.IsSpace(r):
			return -1
		case r == '₩' || r == '$' || r == '원' || r == '￦':
			return -1
		}
		return r
	}, s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.New("is not a valid number")
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
