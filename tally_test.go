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
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jerry-enebeli/tally/config"
	"github.com/jerry-enebeli/tally/database/memory"
	"github.com/jerry-enebeli/tally/internal/cache"
	"github.com/jerry-enebeli/tally/internal/filestore"
	"github.com/jerry-enebeli/tally/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const csvHeader = "counterparty,trade_date,voucher_no,item_name,quantity,unit_price,supply_amount,vat_amount,total_amount,memo\n"

type fakeQueue struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (q *fakeQueue) EnqueueIngest(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, jobID)
	return nil
}

type testEnv struct {
	tally *Tally
	ds    *memory.DataSource
	queue *fakeQueue
	files *filestore.LocalStore
	redis *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	config.MockConfig(&config.Configuration{})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	files, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ds := memory.New()
	q := &fakeQueue{}
	tl := New(ds, Dependencies{
		Redis: client,
		Cache: cache.NewCacheWithClient(client),
		Files: files,
		Queue: q,
	}, Settings{})
	return &testEnv{tally: tl, ds: ds, queue: q, files: files, redis: mr}
}

func (e *testEnv) counterparty(t *testing.T, name string, aliases ...string) model.Counterparty {
	t.Helper()
	ctx := context.Background()
	cp := &model.Counterparty{Name: name, Type: model.CounterpartyBoth}
	require.NoError(t, e.ds.CreateCounterparty(ctx, cp))
	for _, a := range aliases {
		require.NoError(t, e.ds.CreateCounterpartyAlias(ctx, &model.CounterpartyAlias{Alias: a, CounterpartyID: cp.CounterpartyID}))
	}
	return *cp
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedVoucher stores the voucher csvLine would produce for the same arguments.
func (e *testEnv) seedVoucher(t *testing.T, cpID, tradeDate, voucherNo string, supply int64) *model.Voucher {
	t.Helper()
	vat := supply / 10
	v := &model.Voucher{
		Kind:           model.JobKindSales,
		CounterpartyID: cpID,
		TradeDate:      date(tradeDate),
		VoucherNo:      voucherNo,
		ItemName:       "widget",
		Quantity:       decimal.NewFromInt(2),
		UnitPrice:      decimal.NewFromInt(supply / 2),
		SupplyAmount:   decimal.NewFromInt(supply),
		VatAmount:      decimal.NewFromInt(vat),
		TotalAmount:    decimal.NewFromInt(supply + vat),
	}
	require.NoError(t, e.ds.InsertVoucher(context.Background(), v))
	return v
}

func csvLine(counterparty, tradeDate, voucherNo string, supply int64) string {
	vat := supply / 10
	return fmt.Sprintf("%s,%s,%s,widget,2,%d,\"%s\",%d,%d,\n", counterparty, tradeDate, voucherNo, supply/2,
		decimal.NewFromInt(supply).StringFixed(2), vat, supply+vat)
}

func csvBody(lines ...string) string {
	return csvHeader + strings.Join(lines, "")
}

// ingest uploads body as a sales csv and runs the worker step synchronously.
func (e *testEnv) ingest(t *testing.T, body string) *model.JobDetail {
	t.Helper()
	ctx := context.Background()
	job, err := e.tally.UploadVouchers(ctx, model.JobKindSales, "vouchers.csv", strings.NewReader(body), "tester")
	require.NoError(t, err)
	require.NoError(t, e.tally.ProcessUploadJob(ctx, job.JobID))

	detail, err := e.tally.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusSucceeded, detail.Status)
	return detail
}

func rowsByStatus(rows []model.PreviewRow) map[model.RowStatus][]model.PreviewRow {
	out := map[model.RowStatus][]model.PreviewRow{}
	for _, r := range rows {
		out[r.Status()] = append(out[r.Status()], r)
	}
	return out
}
