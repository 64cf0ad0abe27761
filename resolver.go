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
	"context"
	"sort"
	"strings"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/model"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// suggestionDrift is the largest edit distance, as a percentage of the longer
// name, for a counterparty to be offered as a suggestion.
const suggestionDrift = 40.0

// CounterpartyDirectory resolves spreadsheet names to counterparties. It is
// loaded once per classification pass and never changes afterwards.
type CounterpartyDirectory struct {
	byID    map[string]model.Counterparty
	byName  map[string]string
	byAlias map[string]string
}

// NewCounterpartyDirectory indexes counterparties by normalized name and alias.
func NewCounterpartyDirectory(counterparties []model.Counterparty) *CounterpartyDirectory {
	d := &CounterpartyDirectory{
		byID:    make(map[string]model.Counterparty, len(counterparties)),
		byName:  make(map[string]string, len(counterparties)),
		byAlias: make(map[string]string),
	}
	for _, cp := range counterparties {
		d.byID[cp.CounterpartyID] = cp
		d.byName[model.NormalizeName(cp.Name)] = cp.CounterpartyID
		for _, alias := range cp.Aliases {
			d.byAlias[model.NormalizeName(alias)] = cp.CounterpartyID
		}
	}
	return d
}

// Resolve matches name exactly against canonical names first and aliases
// second. There is no partial matching.
func (d *CounterpartyDirectory) Resolve(name string) (model.Counterparty, bool) {
	norm := model.NormalizeName(name)
	if norm == "" {
		return model.Counterparty{}, false
	}
	if id, ok := d.byName[norm]; ok {
		return d.byID[id], true
	}
	if id, ok := d.byAlias[norm]; ok {
		return d.byID[id], true
	}
	return model.Counterparty{}, false
}

// Suggest ranks canonical names close to name by edit distance. Suggestions
// are shown to the operator and never used to resolve a row.
func (d *CounterpartyDirectory) Suggest(name string, limit int) []string {
	norm := model.NormalizeName(name)
	if norm == "" || limit <= 0 {
		return nil
	}

	type candidate struct {
		name     string
		distance int
	}
	best := map[string]candidate{}
	consider := func(text, id string) {
		distance := levenshtein.DistanceForStrings([]rune(norm), []rune(text), levenshtein.DefaultOptions)
		if strings.Contains(text, norm) || strings.Contains(norm, text) {
			distance = 0
		}
		longest := len([]rune(norm))
		if n := len([]rune(text)); n > longest {
			longest = n
		}
		if float64(distance) > float64(longest)*suggestionDrift/100 {
			return
		}
		if c, ok := best[id]; !ok || distance < c.distance {
			best[id] = candidate{name: d.byID[id].Name, distance: distance}
		}
	}
	for text, id := range d.byName {
		consider(text, id)
	}
	for text, id := range d.byAlias {
		consider(text, id)
	}

	ranked := make([]candidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].name < ranked[j].name
	})

	out := []string{}
	for i := 0; i < len(ranked) && i < limit; i++ {
		out = append(out, ranked[i].name)
	}
	return out
}

func loadDirectory(ctx context.Context, ds database.IDataSource) (*CounterpartyDirectory, error) {
	counterparties, err := ds.ListCounterparties(ctx)
	if err != nil {
		return nil, err
	}
	return NewCounterpartyDirectory(counterparties), nil
}
