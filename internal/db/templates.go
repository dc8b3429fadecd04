package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ldi/tend/pkg/models"
)

func (db *DB) CreateTemplate(ctx context.Context, tp *models.Template) error {
	if tp.ID == "" {
		tp.ID = uuid.New().String()
	}
	contexts, err := encodeJSONList(tp.Contexts)
	if err != nil {
		return err
	}
	subtasks, err := encodeSubtasks(tp.Subtasks)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO templates (id, name, title, description, energy, time_estimate, contexts, subtasks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err = db.QueryRowContext(ctx, query,
		tp.ID, tp.Name, tp.Title, tp.Description, tp.Energy, tp.TimeEstimate, contexts, subtasks,
	).Scan(&tp.CreatedAt, &tp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) GetTemplateByName(ctx context.Context, name string) (*models.Template, error) {
	query := `
		SELECT id, name, title, description, energy, time_estimate, contexts, subtasks, created_at, updated_at
		FROM templates
		WHERE name = ?
	`
	tp, err := scanTemplate(db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}
	return tp, nil
}

func (db *DB) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	query := `
		SELECT id, name, title, description, energy, time_estimate, contexts, subtasks, created_at, updated_at
		FROM templates
		ORDER BY name ASC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		tp, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return templates, nil
}

func (db *DB) DeleteTemplate(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("template not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

// InstantiateTemplate creates a new inbox task from the named template.
func (db *DB) InstantiateTemplate(ctx context.Context, name string) (*models.Task, error) {
	tp, err := db.GetTemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tp == nil {
		return nil, fmt.Errorf("template not found: %s", name)
	}

	t := tp.Instantiate()
	if err := db.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func scanTemplate(row scanner) (*models.Template, error) {
	tp := &models.Template{}
	var contexts, subtasks string
	err := row.Scan(
		&tp.ID, &tp.Name, &tp.Title, &tp.Description, &tp.Energy, &tp.TimeEstimate,
		&contexts, &subtasks, &tp.CreatedAt, &tp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONInto(contexts, &tp.Contexts); err != nil {
		return nil, fmt.Errorf("failed to decode contexts: %w", err)
	}
	if err := decodeJSONInto(subtasks, &tp.Subtasks); err != nil {
		return nil, fmt.Errorf("failed to decode subtasks: %w", err)
	}
	return tp, nil
}
