// Copyright 2026 The TrustFabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// IsBootstrapDone reports whether any tenant exists. Bootstrap is a
// one-shot: the first tenant's presence marks it done.
func (s *Store) IsBootstrapDone(ctx context.Context) (bool, error) {
	var done bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants)`).Scan(&done)
	if err != nil {
		return false, wrapErr(err, "")
	}
	return done, nil
}
