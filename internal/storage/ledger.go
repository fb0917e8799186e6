package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Boot is one start of the device.
type Boot struct {
	ID          int64     `json:"id"`
	BootedAt    time.Time `json:"booted_at"`
	Version     string    `json:"version"`
	SSID        string    `json:"ssid"`
	LinkOutcome string    `json:"link_outcome"`
	Address     string    `json:"address"`
}

// Share is one submitted share and the pool's verdict.
type Share struct {
	BootID      int64     `json:"boot_id"`
	SessionID   string    `json:"session_id"`
	Seed        string    `json:"seed"`
	Target      string    `json:"target"`
	Nonce       uint64    `json:"nonce"`
	Accepted    bool      `json:"accepted"`
	Reason      string    `json:"reason,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Totals summarizes the ledger.
type Totals struct {
	Boots     int64      `json:"boots"`
	Accepted  int64      `json:"accepted"`
	Rejected  int64      `json:"rejected"`
	LastBoot  *Boot      `json:"last_boot,omitempty"`
	LastShare *time.Time `json:"last_share,omitempty"`
}

// timeLayout is fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordBoot inserts a boot record and returns its ID.
func (s *Store) RecordBoot(ctx context.Context, b Boot) (int64, error) {
	if b.BootedAt.IsZero() {
		b.BootedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO boots (booted_at, version, ssid, link_outcome, address)
		VALUES (?, ?, ?, ?, ?)
	`,
		b.BootedAt.UTC().Format(timeLayout),
		b.Version,
		b.SSID,
		b.LinkOutcome,
		b.Address,
	)
	if err != nil {
		return 0, fmt.Errorf("record boot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record boot: %w", err)
	}
	return id, nil
}

// UpdateLink stores the link outcome of a boot.
func (s *Store) UpdateLink(ctx context.Context, bootID int64, outcome, address string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE boots SET link_outcome = ?, address = ? WHERE id = ?`,
		outcome, address, bootID,
	)
	if err != nil {
		return fmt.Errorf("update boot %d: %w", bootID, err)
	}
	return nil
}

// RecordShare appends a share to the ledger.
func (s *Store) RecordShare(ctx context.Context, sh Share) error {
	if sh.SubmittedAt.IsZero() {
		sh.SubmittedAt = time.Now()
	}
	var bootID sql.NullInt64
	if sh.BootID > 0 {
		bootID = sql.NullInt64{Int64: sh.BootID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (boot_id, session_id, seed, target, nonce, accepted, reason, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		bootID,
		sh.SessionID,
		sh.Seed,
		sh.Target,
		int64(sh.Nonce),
		sh.Accepted,
		sh.Reason,
		sh.SubmittedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record share: %w", err)
	}
	return nil
}

// Totals returns ledger-wide counts and the most recent boot and share.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM boots),
			(SELECT COUNT(*) FROM shares WHERE accepted = 1),
			(SELECT COUNT(*) FROM shares WHERE accepted = 0)
	`).Scan(&t.Boots, &t.Accepted, &t.Rejected)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}

	var last Boot
	var bootedAt string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, booted_at, version, ssid, link_outcome, address
		FROM boots ORDER BY id DESC LIMIT 1
	`).Scan(&last.ID, &bootedAt, &last.Version, &last.SSID, &last.LinkOutcome, &last.Address)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return Totals{}, fmt.Errorf("query last boot: %w", err)
	default:
		if last.BootedAt, err = time.Parse(timeLayout, bootedAt); err != nil {
			return Totals{}, fmt.Errorf("parse booted_at: %w", err)
		}
		t.LastBoot = &last
	}

	var submittedAt sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(submitted_at) FROM shares`).Scan(&submittedAt); err != nil {
		return Totals{}, fmt.Errorf("query last share: %w", err)
	}
	if submittedAt.Valid {
		ts, err := time.Parse(timeLayout, submittedAt.String)
		if err != nil {
			return Totals{}, fmt.Errorf("parse submitted_at: %w", err)
		}
		t.LastShare = &ts
	}
	return t, nil
}

// RecentShares returns up to limit shares, newest first.
func (s *Store) RecentShares(ctx context.Context, limit int) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT boot_id, session_id, seed, target, nonce, accepted, reason, submitted_at
		FROM shares ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query shares: %w", err)
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		var sh Share
		var bootID sql.NullInt64
		var nonce int64
		var submittedAt string
		if err := rows.Scan(&bootID, &sh.SessionID, &sh.Seed, &sh.Target, &nonce, &sh.Accepted, &sh.Reason, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		sh.BootID = bootID.Int64
		sh.Nonce = uint64(nonce)
		if sh.SubmittedAt, err = time.Parse(timeLayout, submittedAt); err != nil {
			return nil, fmt.Errorf("parse submitted_at: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}
