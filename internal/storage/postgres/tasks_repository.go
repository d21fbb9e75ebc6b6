package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/tasks"
)

var _ tasks.Repository = (*TaskRepository)(nil)

type TaskRepository struct {
	pool *pgxpool.Pool
}

const taskColumns = `id, workspace_id, title, description, status, priority, assignee_id, due_date, completed_at, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (*tasks.Task, error) {
	var t tasks.Task
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeID, &t.DueDate, &t.CompletedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) CreateTask(ctx context.Context, params tasks.CreateParams) (*tasks.Task, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO tasks (id, workspace_id, title, description, status, priority, assignee_id, due_date, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+taskColumns,
		params.ID, params.WorkspaceID, params.Title, params.Description,
		string(tasks.StatusTodo), string(params.Priority), params.AssigneeID,
		params.DueDate, params.CreatedBy)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (r *TaskRepository) TaskByID(ctx context.Context, id string) (*tasks.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrNotFound
		}
		return nil, fmt.Errorf("task by id: %w", err)
	}
	if err := r.loadLabels(ctx, []*tasks.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) List(ctx context.Context, filter tasks.ListFilter) ([]tasks.Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	args := []any{filter.WorkspaceID, limit}
	query := `
SELECT ` + taskColumns + `
  FROM tasks
 WHERE workspace_id = $1`
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		query += fmt.Sprintf(" AND assignee_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC LIMIT $2"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []*tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadLabels(ctx, items); err != nil {
		return nil, err
	}

	out := make([]tasks.Task, 0, len(items))
	for _, t := range items {
		out = append(out, *t)
	}
	return out, nil
}

func (r *TaskRepository) loadLabels(ctx context.Context, items []*tasks.Task) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[string]*tasks.Task, len(items))
	ids := make([]string, 0, len(items))
	for _, t := range items {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := r.pool.Query(ctx, `
SELECT task_id, label_id FROM task_labels WHERE task_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("load task labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, labelID string
		if err := rows.Scan(&taskID, &labelID); err != nil {
			return fmt.Errorf("scan task label: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.LabelIDs = append(t.LabelIDs, labelID)
		}
	}
	return rows.Err()
}

func (r *TaskRepository) ApplyUpdate(ctx context.Context, task *tasks.Task, activities []tasks.Activity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE tasks
   SET title = $2, description = $3, status = $4, priority = $5,
       assignee_id = $6, due_date = $7, completed_at = $8, updated_at = now()
 WHERE id = $1`,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		task.AssigneeID, task.DueDate, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tasks.ErrNotFound
	}

	for _, a := range activities {
		_, err := tx.Exec(ctx, `
INSERT INTO task_activities (id, task_id, actor_id, field, old_value, new_value, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.TaskID, a.ActorID, a.Field, a.OldValue, a.NewValue, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("record task activity: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) CreateLabel(ctx context.Context, label tasks.Label) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO labels (id, workspace_id, name, color)
VALUES ($1, $2, $3, $4)`, label.ID, label.WorkspaceID, label.Name, label.Color)
	if err != nil {
		return fmt.Errorf("create label: %w", err)
	}
	return nil
}

func (r *TaskRepository) LabelsForWorkspace(ctx context.Context, workspaceID string) ([]tasks.Label, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, workspace_id, name, color FROM labels WHERE workspace_id = $1 ORDER BY name`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("labels for workspace: %w", err)
	}
	defer rows.Close()

	var out []tasks.Label
	for rows.Next() {
		var l tasks.Label
		if err := rows.Scan(&l.ID, &l.WorkspaceID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *TaskRepository) LabelByID(ctx context.Context, id string) (*tasks.Label, error) {
	var l tasks.Label
	err := r.pool.QueryRow(ctx, `
SELECT id, workspace_id, name, color FROM labels WHERE id = $1`, id).
		Scan(&l.ID, &l.WorkspaceID, &l.Name, &l.Color)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrLabelNotFound
		}
		return nil, fmt.Errorf("label by id: %w", err)
	}
	return &l, nil
}

func (r *TaskRepository) DeleteLabel(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM labels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tasks.ErrLabelNotFound
	}
	return nil
}

func (r *TaskRepository) AttachLabel(ctx context.Context, taskID, labelID string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO task_labels (task_id, label_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, taskID, labelID)
	if err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return nil
}

func (r *TaskRepository) DetachLabel(ctx context.Context, taskID, labelID string) error {
	_, err := r.pool.Exec(ctx, `
DELETE FROM task_labels WHERE task_id = $1 AND label_id = $2`, taskID, labelID)
	if err != nil {
		return fmt.Errorf("detach label: %w", err)
	}
	return nil
}

func (r *TaskRepository) AddComment(ctx context.Context, comment tasks.Comment) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO task_comments (id, task_id, author_id, body, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		comment.ID, comment.TaskID, comment.AuthorID, comment.Body, comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (r *TaskRepository) Comments(ctx context.Context, taskID string) ([]tasks.Comment, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, task_id, author_id, body, created_at
  FROM task_comments
 WHERE task_id = $1
 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("task comments: %w", err)
	}
	defer rows.Close()

	var out []tasks.Comment
	for rows.Next() {
		var c tasks.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *TaskRepository) Activities(ctx context.Context, taskID string, limit int) ([]tasks.Activity, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, task_id, actor_id, field, old_value, new_value, created_at
  FROM task_activities
 WHERE task_id = $1
 ORDER BY created_at DESC
 LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("task activities: %w", err)
	}
	defer rows.Close()

	var out []tasks.Activity
	for rows.Next() {
		var a tasks.Activity
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ActorID, &a.Field, &a.OldValue, &a.NewValue, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
