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
	"strings"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
)

const (
	skipReasonExists = "already exists"
	skipReasonEmpty  = "name is empty"
)

// ListCounterparties returns every counterparty with its aliases, ordered by name.
func (t *Tally) ListCounterparties(ctx context.Context) ([]model.Counterparty, error) {
	ctx, span := tracer.Start(ctx, "ListCounterparties")
	defer span.End()
	return t.datasource.ListCounterparties(ctx)
}

// BatchCreateCounterparties registers the names an operator picked from the
// unmatched list of a job. Each new counterparty also gets its name as an
// alias so the next upload matches on the first pass. Names that already
// exist are skipped with a reason, which makes the call safe to repeat.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - names []model.NewCounterpartyName: The names and types to register.
// - actor string: Who registers them.
//
// Returns:
// - *model.BatchCounterpartyResult: Created and skipped entries with counts.
// - error: INVALID_INPUT for an unknown type, or a storage failure.
func (t *Tally) BatchCreateCounterparties(ctx context.Context, names []model.NewCounterpartyName, actor string) (*model.BatchCounterpartyResult, error) {
	ctx, span := tracer.Start(ctx, "BatchCreateCounterparties")
	defer span.End()

	for _, n := range names {
		if !n.Type.Valid() {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "type must be customer, vendor or both", map[string]string{"name": n.Name})
		}
	}

	result := &model.BatchCounterpartyResult{Created: []model.Counterparty{}, Skipped: []model.SkippedCounterparty{}}
	for _, n := range names {
		name := strings.Join(strings.Fields(n.Name), " ")
		if name == "" {
			result.Skipped = append(result.Skipped, model.SkippedCounterparty{Name: n.Name, Reason: skipReasonEmpty})
			continue
		}

		var created *model.Counterparty
		var skipped *model.SkippedCounterparty
		err := t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
			var err error
			created, skipped, err = registerCounterparty(ctx, tx, name, n.Type, actor)
			return err
		})
		if err != nil && database.IsUniqueViolation(err) {
			// lost a race with a concurrent registration of the same name
			created, skipped, err = nil, &model.SkippedCounterparty{Name: name, Reason: skipReasonExists}, nil
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		if created != nil {
			result.Created = append(result.Created, *created)
		} else {
			result.Skipped = append(result.Skipped, *skipped)
		}
	}

	result.CreatedCount = len(result.Created)
	result.SkippedCount = len(result.Skipped)
	logrus.WithFields(logrus.Fields{"created": result.CreatedCount, "skipped": result.SkippedCount, "actor": actor}).Info("counterparties registered")
	return result, nil
}

func registerCounterparty(ctx context.Context, tx database.IDataSource, name string, cpType model.CounterpartyType, actor string) (*model.Counterparty, *model.SkippedCounterparty, error) {
	norm := model.NormalizeName(name)

	existing, err := tx.FindCounterpartyByName(ctx, norm)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		if err := ensureAlias(ctx, tx, name, existing.CounterpartyID, actor); err != nil {
			return nil, nil, err
		}
		return nil, &model.SkippedCounterparty{Name: name, Reason: skipReasonExists, CounterpartyID: existing.CounterpartyID}, nil
	}

	owner, err := tx.FindAliasOwner(ctx, norm)
	if err != nil {
		return nil, nil, err
	}
	if owner != nil {
		cp, err := tx.GetCounterparty(ctx, owner.CounterpartyID)
		if err != nil {
			return nil, nil, err
		}
		return nil, &model.SkippedCounterparty{Name: name, Reason: "registered as alias of " + cp.Name, CounterpartyID: cp.CounterpartyID}, nil
	}

	cp := &model.Counterparty{Name: name, Type: cpType}
	if err := tx.CreateCounterparty(ctx, cp); err != nil {
		return nil, nil, err
	}
	if err := ensureAlias(ctx, tx, name, cp.CounterpartyID, actor); err != nil {
		return nil, nil, err
	}
	if err := tx.RecordAuditLogs(ctx, model.NewAuditLogEntry(model.AuditCounterpartyCreate, actor, model.AuditTargetCounterparty, cp.CounterpartyID,
		map[string]interface{}{"name": cp.Name, "type": cp.Type})); err != nil {
		return nil, nil, err
	}
	cp.Aliases = []string{name}
	return cp, nil, nil
}

// ensureAlias registers alias for counterpartyID unless it is already
// registered. An alias owned by a different counterparty is a CONFLICT.
func ensureAlias(ctx context.Context, tx database.IDataSource, alias, counterpartyID, actor string) error {
	owner, err := tx.FindAliasOwner(ctx, model.NormalizeName(alias))
	if err != nil {
		return err
	}
	if owner != nil {
		if owner.CounterpartyID == counterpartyID {
			return nil
		}
		return apierror.NewAPIError(apierror.ErrConflict, "alias "+alias+" already belongs to another counterparty", map[string]string{"counterparty_id": owner.CounterpartyID})
	}

	if err := tx.CreateCounterpartyAlias(ctx, &model.CounterpartyAlias{Alias: alias, CounterpartyID: counterpartyID}); err != nil {
		return err
	}
	return tx.RecordAuditLogs(ctx, model.NewAuditLogEntry(model.AuditCounterpartyAlias, actor, model.AuditTargetCounterparty, counterpartyID,
		map[string]interface{}{"alias": alias}))
}

// MapUnmatchedCounterparty links one spreadsheet spelling to an existing
// counterparty. Mapping an alias to the counterparty it already belongs to
// is a no-op.
func (t *Tally) MapUnmatchedCounterparty(ctx context.Context, alias, counterpartyID, actor string) error {
	ctx, span := tracer.Start(ctx, "MapUnmatchedCounterparty")
	defer span.End()

	alias = strings.Join(strings.Fields(alias), " ")
	if alias == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "alias is required", nil)
	}

	err := t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
		cp, err := tx.GetCounterparty(ctx, counterpartyID)
		if err != nil {
			return err
		}
		named, err := tx.FindCounterpartyByName(ctx, model.NormalizeName(alias))
		if err != nil {
			return err
		}
		if named != nil && named.CounterpartyID != cp.CounterpartyID {
			return apierror.NewAPIError(apierror.ErrConflict, "alias "+alias+" is the name of another counterparty", map[string]string{"counterparty_id": named.CounterpartyID})
		}
		return ensureAlias(ctx, tx, alias, cp.CounterpartyID, actor)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	logrus.WithFields(logrus.Fields{"alias": alias, "counterparty_id": counterpartyID, "actor": actor}).Info("alias mapped")
	return nil
}
