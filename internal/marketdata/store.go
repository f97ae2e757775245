package marketdata

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/database"
	"github.com/quantsmith/backcast/internal/domain"
)

// barsSchema is the single table backing the price store. Timestamps are unix
// seconds in UTC so daily and intraday bars share one ordering.
const barsSchema = `
CREATE TABLE IF NOT EXISTS bars (
	ticker TEXT NOT NULL,
	ts     INTEGER NOT NULL,
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	volume REAL NOT NULL,
	PRIMARY KEY (ticker, ts)
);
CREATE INDEX IF NOT EXISTS idx_bars_ticker_ts ON bars(ticker, ts);
`

// BarStore persists validated bars in sqlite and serves ordered range reads.
// Rows are immutable once imported; re-importing a ticker replaces its rows
// atomically.
type BarStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewBarStore creates the store and applies the schema.
func NewBarStore(db *database.DB, log zerolog.Logger) (*BarStore, error) {
	store := &BarStore{
		db:  db,
		log: log.With().Str("component", "bar_store").Logger(),
	}
	if _, err := db.Conn().Exec(barsSchema); err != nil {
		return nil, fmt.Errorf("failed to apply bars schema: %w", err)
	}
	return store, nil
}

// ImportCSV validates and loads one ticker's bar file, replacing any existing
// rows for the ticker in a single transaction.
func (s *BarStore) ImportCSV(ticker, path string) (int, error) {
	bars, err := ParseCSVFile(ticker, path)
	if err != nil {
		return 0, err
	}

	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM bars WHERE ticker = ?`, ticker); err != nil {
			return fmt.Errorf("failed to clear existing bars for %s: %w", ticker, err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO bars (ticker, ts, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.Exec(ticker, b.Date.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return fmt.Errorf("failed to insert bar %s/%s: %w", ticker, b.Date.Format(time.RFC3339), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("ticker", ticker).
		Int("bars", len(bars)).
		Msg("Imported price file")

	return len(bars), nil
}

// ImportDir imports every `<TICKER>.csv` under dir for the requested tickers.
// A missing file for a requested ticker is a hard error.
func (s *BarStore) ImportDir(dir string, tickers []string) error {
	for _, ticker := range tickers {
		path := filepath.Join(dir, ticker+".csv")
		if _, err := os.Stat(path); err != nil {
			// Ticker may already be in the store from a previous import.
			n, countErr := s.countBars(ticker)
			if countErr == nil && n > 0 {
				s.log.Debug().Str("ticker", ticker).Int("bars", n).Msg("Using previously imported bars")
				continue
			}
			return fmt.Errorf("no price file for ticker %s (looked for %s): %w", ticker, path, err)
		}
		if _, err := s.ImportCSV(ticker, path); err != nil {
			return err
		}
	}
	return nil
}

// LoadTicker reads a ticker's full ordered bar sequence.
func (s *BarStore) LoadTicker(ticker string) ([]domain.Bar, error) {
	rows, err := s.db.Conn().Query(`
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE ticker = ?
		ORDER BY ts ASC
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var ts int64
		var b domain.Bar
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", ticker, err)
		}
		b.Date = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars for %s: %w", ticker, err)
	}

	return bars, nil
}

// Tickers lists every ticker present in the store.
func (s *BarStore) Tickers() ([]string, error) {
	rows, err := s.db.Conn().Query(`SELECT DISTINCT ticker FROM bars ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

func (s *BarStore) countBars(ticker string) (int, error) {
	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM bars WHERE ticker = ?`, ticker).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", ticker, err)
	}
	return n, nil
}
