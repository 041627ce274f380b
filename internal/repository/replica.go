// Package repository provides PostgreSQL persistence for the sync
// server's replica and its user accounts.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/atinyakov/TaskSync/internal/kdf"
	"github.com/atinyakov/TaskSync/internal/models"
)

// PostgresReplicaRepository stores the server replica's task rows,
// tombstones included, in a PostgreSQL database.
type PostgresReplicaRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresReplicaRepository creates a repository using the provided
// *sql.DB.
func NewPostgresReplicaRepository(db *sql.DB) *PostgresReplicaRepository {
	return &PostgresReplicaRepository{DB: db}
}

// Identity returns the server replica's id and credential salt, creating
// and persisting both on first use.
func (r *PostgresReplicaRepository) Identity(ctx context.Context) (string, []byte, error) {
	var replicaID string
	var salt []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT replica_id, salt FROM replica_meta WHERE id = 1
	`).Scan(&replicaID, &salt)
	if err == nil {
		return replicaID, salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("load replica identity: %w", err)
	}

	replicaID = uuid.NewString()
	salt, err = kdf.NewSalt()
	if err != nil {
		return "", nil, err
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO replica_meta (id, replica_id, salt) VALUES (1, $1, $2)
	`, replicaID, salt); err != nil {
		return "", nil, fmt.Errorf("init replica identity: %w", err)
	}
	return replicaID, salt, nil
}

// LoadTasks fetches every task row, tombstones included, keyed by id.
func (r *PostgresReplicaRepository) LoadTasks(ctx context.Context) (map[string]models.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, title, description, due, priority, completed, created_at, modified_at, modified_by, deleted
		  FROM tasks
	`)
	if err != nil {
		return nil, fmt.Errorf("LoadTasks: %w", err)
	}
	defer rows.Close()

	tasks := make(map[string]models.Task)
	for rows.Next() {
		var (
			rec         models.Record
			description sql.NullString
			due         sql.NullTime
			priority    string
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &description, &due, &priority,
			&rec.Completed, &rec.CreatedAt, &rec.ModifiedAt, &rec.ModifiedBy, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if description.Valid {
			rec.Description = description.String
		}
		if due.Valid {
			d := due.Time
			rec.Due = &d
		}
		rec.Priority, err = models.ParsePriority(priority)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", rec.ID, err)
		}
		task, err := models.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("task row: %w", err)
		}
		tasks[task.ID()] = task
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadTasks: %w", err)
	}
	return tasks, nil
}

// SaveTasks upserts the given task set within a single transaction, so a
// failed sync never leaves the server replica half-written.
func (r *PostgresReplicaRepository) SaveTasks(ctx context.Context, tasks map[string]models.Task) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (id, title, description, due, priority, completed, created_at, modified_at, modified_by, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			due = EXCLUDED.due,
			priority = EXCLUDED.priority,
			completed = EXCLUDED.completed,
			modified_at = EXCLUDED.modified_at,
			modified_by = EXCLUDED.modified_by,
			deleted = EXCLUDED.deleted
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, task := range tasks {
		rec := task.Record()
		var description sql.NullString
		if rec.Description != "" {
			description = sql.NullString{String: rec.Description, Valid: true}
		}
		var due sql.NullTime
		if rec.Due != nil {
			due = sql.NullTime{Time: *rec.Due, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Title, description, due,
			rec.Priority.String(), rec.Completed, rec.CreatedAt, rec.ModifiedAt,
			rec.ModifiedBy, rec.Deleted); err != nil {
			return fmt.Errorf("upsert task %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
