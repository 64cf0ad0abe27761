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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jerry-enebeli/tally/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) Cache {
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{Redis: config.RedisConfig{Dns: mr.Addr()}})
	c, err := NewCache()
	require.NoError(t, err)
	return c
}

type lockRow struct {
	YearMonth string `json:"year_month"`
	Status    string `json:"status"`
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	value := []lockRow{{YearMonth: "2024-01", Status: "locked"}, {YearMonth: "2024-02", Status: "open"}}
	require.NoError(t, c.Set(ctx, "period-locks:2024", value, 10*time.Minute))

	var got []lockRow
	require.NoError(t, c.Get(ctx, "period-locks:2024", &got))
	assert.Equal(t, value, got)
}

func TestGetMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var got []lockRow
	err := c.Get(ctx, "nonExistentKey", &got)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "testKey", "testValue", 10*time.Minute))
	require.NoError(t, c.Delete(ctx, "testKey"))

	var got string
	assert.ErrorIs(t, c.Get(ctx, "testKey", &got), ErrMiss)

	assert.NoError(t, c.Delete(ctx, "nonExistentKey"))
}
