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
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jerry-enebeli/tally/config"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

// errNoTx is returned by methods that only make sense inside WithTx.
var errNoTx = errors.New("database: operation requires a transaction")

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type Datasource struct {
	Conn *sql.DB
	tx   *sql.Tx
}

func (d Datasource) db() executor {
	if d.tx != nil {
		return d.tx
	}
	return d.Conn
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("database connection was not initialized")
	}
	return instance, nil
}

// ConnectDB opens the postgres pool and waits for the server to answer,
// retrying with exponential backoff. Tables are created by the migrate
// command, not here.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second

	err = backoff.Retry(func() error {
		if pingErr := db.Ping(); pingErr != nil {
			// a malformed dsn never recovers
			if isPermanentDSNError(pingErr) {
				return backoff.Permanent(pingErr)
			}
			return pingErr
		}
		return nil
	}, b)
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func isPermanentDSNError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{`missing "=" after`, "invalid connection protocol", "unsupported sslmode"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WithTx runs fn inside one read-committed transaction. fn receives a data
// source bound to that transaction; the transaction commits when fn returns
// nil and rolls back otherwise. Nested calls reuse the outer transaction.
func (d Datasource) WithTx(ctx context.Context, fn func(IDataSource) error) (err error) {
	if d.tx != nil {
		return fn(d)
	}

	ctx, span := otel.Tracer("tally.database").Start(ctx, "WithTx")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(Datasource{Conn: d.Conn, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("rollback failed: %v", rbErr)
		}
		span.RecordError(err)
		return err
	}

	if err = tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
