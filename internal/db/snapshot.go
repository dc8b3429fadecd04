package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/tend/pkg/models"
)

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation.
func (db *DB) EnableAutoSnapshot(path string) {
	db.SetOnChange(func(ctx context.Context) {
		// Best-effort: a failed export must not fail the original write.
		_ = db.ExportSnapshot(ctx, path)
	})
}

type metaRecord struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

type projectRecord struct {
	RecordType string `json:"record_type"`
	*models.Project
}

type taskRecord struct {
	RecordType string `json:"record_type"`
	*models.Task
}

type referenceRecord struct {
	RecordType string `json:"record_type"`
	*models.Reference
}

type templateRecord struct {
	RecordType string `json:"record_type"`
	*models.Template
}

type dependencyRecord struct {
	RecordType string `json:"record_type"`
	*models.Dependency
}

// ExportSnapshot writes the full dataset as JSONL, atomically via a
// temporary file. Dependency edges are exported from the edge table, not
// from the tasks, so dangling edges survive an export/import cycle and the
// dependent tasks stay blocked.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	writeLine := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot record: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
		return nil
	}

	if err := writeLine(metaRecord{RecordType: "meta", Version: 1, ExportedAt: time.Now().UTC()}); err != nil {
		return err
	}

	projects, err := db.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if err := writeLine(projectRecord{"project", p}); err != nil {
			return err
		}
	}

	tasks, err := db.ListTasks(ctx, TaskFilter{})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := writeLine(taskRecord{"task", t}); err != nil {
			return err
		}
	}

	refs, err := db.ListReferences(ctx)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if err := writeLine(referenceRecord{"reference", r}); err != nil {
			return err
		}
	}

	templates, err := db.ListTemplates(ctx)
	if err != nil {
		return err
	}
	for _, tp := range templates {
		if err := writeLine(templateRecord{"template", tp}); err != nil {
			return err
		}
	}

	deps, err := db.ListDependencies(ctx)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if err := writeLine(dependencyRecord{"dependency", d}); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ImportSnapshot reads a JSONL snapshot and upserts it into the database
// inside one transaction. Records match on ID: existing rows are replaced,
// unknown rows are inserted, rows absent from the snapshot are left alone.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(line, &base); err != nil {
			return fmt.Errorf("failed to unmarshal base record: %w", err)
		}

		switch base.RecordType {
		case "meta":
			// Skip meta

		case "project":
			var p models.Project
			if err := json.Unmarshal(line, &p); err != nil {
				return fmt.Errorf("failed to unmarshal project: %w", err)
			}
			contexts, err := encodeJSONList(p.Contexts)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO projects (id, title, description, status, contexts, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Title, p.Description, p.Status, contexts, p.CreatedAt, p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to sync project %s: %w", p.ID, err)
			}

		case "task":
			var t models.Task
			if err := json.Unmarshal(line, &t); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}
			recurrence, err := encodeRecurrence(t.Recurrence)
			if err != nil {
				return err
			}
			contexts, err := encodeJSONList(t.Contexts)
			if err != nil {
				return err
			}
			subtasks, err := encodeSubtasks(t.Subtasks)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO tasks (
					id, title, description, type, status, project_id, due_date, defer_date,
					completed, completed_at, recurrence, recurrence_end_date, recurrence_parent_id,
					waiting_for_description, energy, time_estimate, time_spent, contexts, subtasks,
					starred, position, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.Title, t.Description, t.Type, t.Status, t.ProjectID, t.DueDate, t.DeferDate,
				boolToInt(t.Completed), t.CompletedAt, recurrence, t.RecurrenceEndDate, t.RecurrenceParentID,
				t.WaitingForDescription, t.Energy, t.TimeEstimate, t.TimeSpent, contexts, subtasks,
				boolToInt(t.Starred), t.Position, t.CreatedAt, t.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to sync task %s: %w", t.ID, err)
			}
			// Edges are restored from dependency records below.
			if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE task_id = ?`, t.ID); err != nil {
				return fmt.Errorf("failed to clear task dependencies: %w", err)
			}

		case "reference":
			var r models.Reference
			if err := json.Unmarshal(line, &r); err != nil {
				return fmt.Errorf("failed to unmarshal reference: %w", err)
			}
			contexts, err := encodeJSONList(r.Contexts)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO refs (id, title, description, contexts, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				r.ID, r.Title, r.Description, contexts, r.CreatedAt, r.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to sync reference %s: %w", r.ID, err)
			}

		case "template":
			var tp models.Template
			if err := json.Unmarshal(line, &tp); err != nil {
				return fmt.Errorf("failed to unmarshal template: %w", err)
			}
			contexts, err := encodeJSONList(tp.Contexts)
			if err != nil {
				return err
			}
			subtasks, err := encodeSubtasks(tp.Subtasks)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO templates (id, name, title, description, energy, time_estimate, contexts, subtasks, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				tp.ID, tp.Name, tp.Title, tp.Description, tp.Energy, tp.TimeEstimate, contexts, subtasks, tp.CreatedAt, tp.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to sync template %s: %w", tp.ID, err)
			}

		case "dependency":
			var d models.Dependency
			if err := json.Unmarshal(line, &d); err != nil {
				return fmt.Errorf("failed to unmarshal dependency: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO dependencies (task_id, waits_for_task_id) VALUES (?, ?)`,
				d.TaskID, d.WaitsForTaskID)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", d.TaskID, d.WaitsForTaskID, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
