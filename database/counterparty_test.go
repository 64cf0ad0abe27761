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
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counterpartyColumnNames = []string{"counterparty_id", "name", "type", "created_at", "aliases"}

func TestListCounterparties(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM tally.counterparties c LEFT JOIN tally.counterparty_aliases a .* GROUP BY .* ORDER BY c.name").
		WillReturnRows(sqlmock.NewRows(counterpartyColumnNames).
			AddRow("cp_1", "ACME Corp", "customer", now, "{acme,\"ACME Co\"}").
			AddRow("cp_2", "Globex", "both", now, "{}"))

	cps, err := ds.ListCounterparties(context.Background())
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, []string{"acme", "ACME Co"}, cps[0].Aliases)
	assert.Equal(t, model.CounterpartyCustomer, cps[0].Type)
	assert.Empty(t, cps[1].Aliases)
}

func TestGetCounterparty_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("WHERE c.counterparty_id = \\$1").
		WithArgs("cp_x").
		WillReturnRows(sqlmock.NewRows(counterpartyColumnNames))

	_, err := ds.GetCounterparty(context.Background(), "cp_x")
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestFindCounterpartyByName(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE c.normalized_name = \\$1").
		WithArgs("acme corp").
		WillReturnRows(sqlmock.NewRows(counterpartyColumnNames).AddRow("cp_1", "ACME Corp", "customer", now, "{}"))
	mock.ExpectQuery("WHERE c.normalized_name = \\$1").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(counterpartyColumnNames))

	cp, err := ds.FindCounterpartyByName(context.Background(), "acme corp")
	require.NoError(t, err)
	assert.Equal(t, "cp_1", cp.CounterpartyID)

	cp, err = ds.FindCounterpartyByName(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestFindAliasOwner(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM tally.counterparty_aliases WHERE normalized_alias = \\$1").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"alias", "counterparty_id", "created_at"}).AddRow("ACME", "cp_1", now))

	alias, err := ds.FindAliasOwner(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "cp_1", alias.CounterpartyID)
}

func TestCreateCounterparty(t *testing.T) {
	ds, mock := newMockDatasource(t)
	name := gofakeit.Company()
	cp := &model.Counterparty{Name: "  " + name + "  ", Type: model.CounterpartyVendor}

	mock.ExpectExec("INSERT INTO tally.counterparties").
		WithArgs(sqlmock.AnyArg(), cp.Name, model.NormalizeName(name), "vendor", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.CreateCounterparty(context.Background(), cp))
	assert.Contains(t, cp.CounterpartyID, "cp_")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCounterpartyAlias_Taken(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO tally.counterparty_aliases").
		WithArgs("ACME ", "acme", "cp_1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := ds.CreateCounterpartyAlias(context.Background(), &model.CounterpartyAlias{Alias: "ACME ", CounterpartyID: "cp_1"})
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
}
