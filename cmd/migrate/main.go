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

// Command migrate applies the embedded schema and exits. It reads
// only the DB_* environment variables so it runs without the full
// server configuration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trustfabric/trustfabric/internal/store/postgres"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, postgres.Config{
		Host:         env("DB_HOST", "localhost"),
		Port:         env("DB_PORT", "5432"),
		User:         env("DB_USER", "trustfabric"),
		Password:     os.Getenv("DB_PASSWORD"),
		Database:     env("DB_NAME", "trustfabric"),
		SSLMode:      env("DB_SSLMODE", "disable"),
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	fmt.Println("Applying initial schema...")
	if err := postgres.Migrate(ctx, pool, postgres.InitialSchema); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migration successful.")
}
