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
	"database/sql"
	"errors"
	"time"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

func scanCounterparty(s rowScanner) (*model.Counterparty, error) {
	cp := &model.Counterparty{}
	var aliases []string
	if err := s.Scan(&cp.CounterpartyID, &cp.Name, &cp.Type, &cp.CreatedAt, pq.Array(&aliases)); err != nil {
		return nil, err
	}
	cp.Aliases = aliases
	return cp, nil
}

const counterpartySelect = `SELECT c.counterparty_id, c.name, c.type, c.created_at,
	COALESCE(array_agg(a.alias ORDER BY a.alias) FILTER (WHERE a.alias IS NOT NULL), '{}') AS aliases
	FROM tally.counterparties c
	LEFT JOIN tally.counterparty_aliases a ON a.counterparty_id = c.counterparty_id`

// ListCounterparties returns every counterparty with its aliases, ordered by name.
func (d Datasource) ListCounterparties(ctx context.Context) ([]model.Counterparty, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "ListCounterparties")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, counterpartySelect+`
		GROUP BY c.counterparty_id, c.name, c.type, c.created_at
		ORDER BY c.name
	`)
	if err != nil {
		return nil, mapError(err, "counterparties")
	}
	defer rows.Close()

	out := []model.Counterparty{}
	for rows.Next() {
		cp, err := scanCounterparty(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan counterparty", err)
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over counterparties", err)
	}
	return out, nil
}

func (d Datasource) GetCounterparty(ctx context.Context, counterpartyID string) (*model.Counterparty, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetCounterparty")
	defer span.End()

	cp, err := scanCounterparty(d.db().QueryRowContext(ctx, counterpartySelect+`
		WHERE c.counterparty_id = $1
		GROUP BY c.counterparty_id, c.name, c.type, c.created_at
	`, counterpartyID))
	if err != nil {
		return nil, mapError(err, "counterparty")
	}
	return cp, nil
}

// FindCounterpartyByName looks a counterparty up by its normalized canonical name.
func (d Datasource) FindCounterpartyByName(ctx context.Context, normalizedName string) (*model.Counterparty, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "FindCounterpartyByName")
	defer span.End()

	cp, err := scanCounterparty(d.db().QueryRowContext(ctx, counterpartySelect+`
		WHERE c.normalized_name = $1
		GROUP BY c.counterparty_id, c.name, c.type, c.created_at
	`, normalizedName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "counterparty")
	}
	return cp, nil
}

// FindAliasOwner returns the alias record registered under a normalized alias.
func (d Datasource) FindAliasOwner(ctx context.Context, normalizedAlias string) (*model.CounterpartyAlias, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "FindAliasOwner")
	defer span.End()

	alias := &model.CounterpartyAlias{}
	err := d.db().QueryRowContext(ctx, `
		SELECT alias, counterparty_id, created_at
		FROM tally.counterparty_aliases
		WHERE normalized_alias = $1
	`, normalizedAlias).Scan(&alias.Alias, &alias.CounterpartyID, &alias.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "counterparty alias")
	}
	return alias, nil
}

func (d Datasource) CreateCounterparty(ctx context.Context, cp *model.Counterparty) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "CreateCounterparty")
	defer span.End()

	if cp.CounterpartyID == "" {
		cp.CounterpartyID = model.GenerateUUIDWithSuffix("cp")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO tally.counterparties (counterparty_id, name, normalized_name, type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, cp.CounterpartyID, cp.Name, model.NormalizeName(cp.Name), cp.Type, cp.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return mapError(err, "counterparty")
	}
	return nil
}

func (d Datasource) CreateCounterpartyAlias(ctx context.Context, alias *model.CounterpartyAlias) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "CreateCounterpartyAlias")
	defer span.End()

	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO tally.counterparty_aliases (alias, normalized_alias, counterparty_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, alias.Alias, model.NormalizeName(alias.Alias), alias.CounterpartyID, alias.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return mapError(err, "counterparty alias")
	}
	return nil
}
