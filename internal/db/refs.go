package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ldi/tend/pkg/models"
)

func (db *DB) CreateReference(ctx context.Context, r *models.Reference) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	contexts, err := encodeJSONList(r.Contexts)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO refs (id, title, description, contexts)
		VALUES (?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err = db.QueryRowContext(ctx, query, r.ID, r.Title, r.Description, contexts).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reference: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) GetReference(ctx context.Context, id string) (*models.Reference, error) {
	query := `
		SELECT id, title, description, contexts, created_at, updated_at
		FROM refs
		WHERE id = ?
	`
	r, err := scanReference(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}
	return r, nil
}

func (db *DB) ListReferences(ctx context.Context) ([]*models.Reference, error) {
	query := `
		SELECT id, title, description, contexts, created_at, updated_at
		FROM refs
		ORDER BY created_at ASC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer rows.Close()

	var refs []*models.Reference
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return refs, nil
}

func (db *DB) UpdateReference(ctx context.Context, r *models.Reference) error {
	contexts, err := encodeJSONList(r.Contexts)
	if err != nil {
		return err
	}

	query := `
		UPDATE refs
		SET title = ?, description = ?, contexts = ?
		WHERE id = ?
		RETURNING updated_at
	`
	err = db.QueryRowContext(ctx, query, r.Title, r.Description, contexts, r.ID).Scan(&r.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("reference not found: %s", r.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update reference: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) DeleteReference(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM refs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reference: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reference not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

func scanReference(row scanner) (*models.Reference, error) {
	r := &models.Reference{}
	var contexts string
	err := row.Scan(&r.ID, &r.Title, &r.Description, &contexts, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONInto(contexts, &r.Contexts); err != nil {
		return nil, fmt.Errorf("failed to decode contexts: %w", err)
	}
	return r, nil
}
