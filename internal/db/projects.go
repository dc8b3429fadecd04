package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ldi/tend/pkg/models"
)

func (db *DB) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	contexts, err := encodeJSONList(p.Contexts)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO projects (id, title, description, status, contexts)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err = db.QueryRowContext(ctx, query, p.ID, p.Title, p.Description, p.Status, contexts).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, title, description, status, contexts, created_at, updated_at
		FROM projects
		WHERE id = ?
	`
	p, err := scanProject(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (db *DB) ListProjects(ctx context.Context) ([]*models.Project, error) {
	query := `
		SELECT id, title, description, status, contexts, created_at, updated_at
		FROM projects
		ORDER BY created_at ASC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return projects, nil
}

func (db *DB) UpdateProject(ctx context.Context, p *models.Project) error {
	contexts, err := encodeJSONList(p.Contexts)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET title = ?, description = ?, status = ?, contexts = ?
		WHERE id = ?
		RETURNING updated_at
	`
	err = db.QueryRowContext(ctx, query, p.Title, p.Description, p.Status, contexts, p.ID).
		Scan(&p.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("project not found: %s", p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteProject removes the project and detaches its tasks; the tasks
// themselves survive with an empty project.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project not found: %s", id)
	}

	if _, err := db.ExecContext(ctx, `UPDATE tasks SET project_id = '' WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach project tasks: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func scanProject(row scanner) (*models.Project, error) {
	p := &models.Project{}
	var contexts string
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Status, &contexts, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONInto(contexts, &p.Contexts); err != nil {
		return nil, fmt.Errorf("failed to decode contexts: %w", err)
	}
	return p, nil
}
