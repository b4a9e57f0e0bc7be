package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vbonduro/pillpal/internal/domain"
)

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save inserts or replaces the snapshot for snap.SessionID. A zero UpdatedAt
// is stamped with the current time.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	var medication sql.NullString
	if snap.Medication != nil {
		b, err := json.Marshal(snap.Medication)
		if err != nil {
			return fmt.Errorf("failed to encode medication: %w", err)
		}
		medication = sql.NullString{String: string(b), Valid: true}
	}

	transcript := snap.Transcript
	if transcript == nil {
		transcript = []domain.ChatMessage{}
	}
	tb, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, view, image_key, image_mime, medication, transcript, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			view = excluded.view,
			image_key = excluded.image_key,
			image_mime = excluded.image_mime,
			medication = excluded.medication,
			transcript = excluded.transcript,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, snap.SessionID, string(snap.View), snap.ImageKey, snap.ImageMIME, medication, string(tb), snap.Error, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Get returns nil, nil when no snapshot exists for id.
func (s *SnapshotStore) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	var (
		snap       domain.Snapshot
		view       string
		medication sql.NullString
		transcript string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, view, image_key, image_mime, medication, transcript, error_message, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&snap.SessionID, &view, &snap.ImageKey, &snap.ImageMIME, &medication, &transcript, &snap.Error, &snap.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	snap.View = domain.View(view)
	if medication.Valid {
		snap.Medication = &domain.Medication{}
		if err := json.Unmarshal([]byte(medication.String), snap.Medication); err != nil {
			return nil, fmt.Errorf("failed to decode medication: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(transcript), &snap.Transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// DeleteIdleBefore removes snapshots last updated before cutoff and returns
// the image keys they referenced.
func (s *SnapshotStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT image_key FROM sessions WHERE updated_at < ? AND image_key != ''
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list idle snapshots: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan image key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating idle snapshots: %w", err)
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("failed to delete idle snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return keys, nil
}
