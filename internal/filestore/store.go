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

package filestore

import (
	"context"
	"io"

	"github.com/jerry-enebeli/tally/config"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Open when no object is stored under the key.
var ErrNotFound = errors.New("object not found")

// Store keeps uploaded spreadsheets until a job has been processed.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New returns the store selected by cfg.Driver.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return NewS3Store(cfg)
	case config.StorageDriverLocal, "":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
