// Package sqlite loads the flattened record set into a local SQLite database
// with the same shape as the SQL dump, giving the reference data an
// immediately queryable form without a database server.
package sqlite

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

const schema = `
CREATE TABLE IF NOT EXISTS bps_wilayah (
  kode_bps        TEXT NOT NULL,
  nama_bps        TEXT NOT NULL,
  kode_dagri      TEXT,
  nama_dagri      TEXT,
  level           TEXT NOT NULL,
  parent_kode_bps TEXT,
  periode_merge   TEXT NOT NULL,
  fetched_at      TEXT NOT NULL,
  PRIMARY KEY (level, kode_bps)
);
CREATE INDEX IF NOT EXISTS bps_wilayah_parent_idx ON bps_wilayah (parent_kode_bps);`

// Import writes records into dbFile inside a single transaction, replacing
// any rows from a previous run of the same periode. Empty parent codes are
// stored as NULL to match the SQL dump.
func Import(ctx context.Context, dbFile string, records []wilayah.Record, periode, fetchedAt string) error {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return errors.Wrapf(err, "open sqlite database %s", dbFile)
	}
	defer db.Close()

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=OFF;",
		"PRAGMA temp_store=MEMORY;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "apply %s", pragma)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create bps_wilayah schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	const insertSQL = `
INSERT OR REPLACE INTO bps_wilayah (
  kode_bps, nama_bps, kode_dagri, nama_dagri,
  level, parent_kode_bps, periode_merge, fetched_at
)
VALUES (?,?,?,?,?,?,?,?);`
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for _, record := range records {
		_, err := stmt.ExecContext(ctx,
			record.KodeBPS,
			record.NamaBPS,
			nullIfEmpty(record.KodeDagri),
			nullIfEmpty(record.NamaDagri),
			string(record.Level),
			nullIfEmpty(record.ParentKodeBPS),
			periode,
			fetchedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "insert level=%s kode_bps=%s", record.Level, record.KodeBPS)
		}
	}

	return errors.Wrap(tx.Commit(), "commit import")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
