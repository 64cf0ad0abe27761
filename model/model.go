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
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// NormalizeName folds a free-text name into the form used for exact matching:
// surrounding whitespace trimmed, inner whitespace runs collapsed to one space
// and the result lower-cased.
func NormalizeName(name string) string {
	fields := strings.FieldsFunc(name, unicode.IsSpace)
	return strings.ToLower(strings.Join(fields, " "))
}

// YearMonth is a calendar month in the form YYYY-MM. Period locks are keyed by it.
type YearMonth string

const yearMonthLayout = "2006-01"

// YearMonthOf returns the year-month a date falls in.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(t.Format(yearMonthLayout))
}

// ParseYearMonth validates s and returns it as a YearMonth.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid year-month %q, expected YYYY-MM", s)
	}
	return YearMonthOf(t), nil
}

// Year returns the four digit year part.
func (ym YearMonth) Year() string {
	if len(ym) < 4 {
		return ""
	}
	return string(ym[:4])
}

func (ym YearMonth) String() string {
	return string(ym)
}

// MonthsOfYear lists the twelve year-months of a year in calendar order.
func MonthsOfYear(year int) []YearMonth {
	months := make([]YearMonth, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, YearMonthOf(time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)))
	}
	return months
}
