package saver

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"ibkr-data/internal/model"
)

const barsSchema = `
CREATE TABLE IF NOT EXISTS bars (
    ts     INTEGER PRIMARY KEY,
    open   REAL NOT NULL,
    high   REAL NOT NULL,
    low    REAL NOT NULL,
    close  REAL NOT NULL,
    volume INTEGER NOT NULL
)`

// SQLiteSaver writes the series into a bars table (duplicate ts overwritten).
type SQLiteSaver struct{}

func (SQLiteSaver) Extension() string { return "db" }

func (SQLiteSaver) Save(series model.Series, path string) error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(barsSchema); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO bars (ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range series {
		if _, err := stmt.Exec(b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
