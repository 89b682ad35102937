// Package store holds the canonical table in a private in-memory SQLite
// database for the aggregation queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
	"github.com/Sternrassler/partd-savings/pkg/logging"
)

// Table is the name of the canonical table.
const Table = "drugs"

var schema = []string{`
CREATE TABLE ` + Table + ` (
	id                  INTEGER PRIMARY KEY,
	brand_name          TEXT NOT NULL CHECK (brand_name <> ''),
	generic_name        TEXT NOT NULL CHECK (generic_name <> ''),
	category            TEXT NOT NULL CHECK (category IN ('brand', 'generic')),
	manufacturer        TEXT,
	total_spending      REAL,
	total_dosage_units  REAL,
	total_claims        REAL,
	total_beneficiaries REAL,
	avg_spend_per_claim REAL,
	avg_spend_per_unit  REAL
)`,
	`CREATE INDEX idx_drugs_generic_category ON ` + Table + ` (generic_name, category)`,
	`CREATE INDEX idx_drugs_manufacturer ON ` + Table + ` (manufacturer, category)`,
}

// Store wraps the in-memory database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates an empty in-memory store with the canonical schema.
func Open(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{
		db:     db,
		logger: logging.NewLogger(logging.ComponentStore),
	}, nil
}

// DB exposes the database for read-only queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close discards the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load inserts records in one transaction. Records already loaded are kept.
func (s *Store) Load(ctx context.Context, records []dataset.Record) error {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+Table+` (
		brand_name, generic_name, category, manufacturer,
		total_spending, total_dosage_units, total_claims, total_beneficiaries,
		avg_spend_per_claim, avg_spend_per_unit
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.BrandName,
			r.GenericName,
			string(r.Category),
			nullString(r.Manufacturer),
			nullFloat(r.TotalSpending),
			nullFloat(r.TotalDosageUnits),
			nullFloat(r.TotalClaims),
			nullFloat(r.TotalBeneficiaries),
			nullFloat(r.AvgSpendPerClaim),
			nullFloat(r.AvgSpendPerUnit),
		); err != nil {
			return fmt.Errorf("insert record %d (%s): %w", i, r.BrandName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w", err)
	}

	s.logger.Info().
		Int("rows", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Records loaded")
	return nil
}

// Count returns the number of loaded records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+Table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Records returns every loaded record in load order.
func (s *Store) Records(ctx context.Context) ([]dataset.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		brand_name, generic_name, category, manufacturer,
		total_spending, total_dosage_units, total_claims, total_beneficiaries,
		avg_spend_per_claim, avg_spend_per_unit
	FROM `+Table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []dataset.Record{}
	for rows.Next() {
		var (
			r            dataset.Record
			category     string
			manufacturer sql.NullString
			metrics      [6]sql.NullFloat64
		)
		if err := rows.Scan(
			&r.BrandName, &r.GenericName, &category, &manufacturer,
			&metrics[0], &metrics[1], &metrics[2], &metrics[3], &metrics[4], &metrics[5],
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Category = dataset.Category(category)
		r.Manufacturer = manufacturer.String
		for i, col := range dataset.MetricColumns {
			r.SetMetric(col, floatPtr(metrics[i]))
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// floatPtr converts a nullable column to the record representation.
func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
