package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/authz"
)

type stubRepo struct {
	tasks      map[string]*Task
	labels     map[string]*Label
	activities map[string][]Activity
	comments   map[string][]Comment
	attached   map[string][]string
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		tasks:      make(map[string]*Task),
		labels:     make(map[string]*Label),
		activities: make(map[string][]Activity),
		comments:   make(map[string][]Comment),
		attached:   make(map[string][]string),
	}
}

func (r *stubRepo) CreateTask(_ context.Context, params CreateParams) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          params.ID,
		WorkspaceID: params.WorkspaceID,
		Title:       params.Title,
		Description: params.Description,
		Status:      StatusTodo,
		Priority:    params.Priority,
		AssigneeID:  params.AssigneeID,
		DueDate:     params.DueDate,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.tasks[task.ID] = task
	return task, nil
}

func (r *stubRepo) TaskByID(_ context.Context, id string) (*Task, error) {
	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (r *stubRepo) List(_ context.Context, filter ListFilter) ([]Task, error) {
	var out []Task
	for _, task := range r.tasks {
		if task.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		out = append(out, *task)
	}
	return out, nil
}

func (r *stubRepo) ApplyUpdate(_ context.Context, task *Task, activities []Activity) error {
	clone := *task
	r.tasks[task.ID] = &clone
	r.activities[task.ID] = append(r.activities[task.ID], activities...)
	return nil
}

func (r *stubRepo) DeleteTask(_ context.Context, id string) error {
	delete(r.tasks, id)
	return nil
}

func (r *stubRepo) CreateLabel(_ context.Context, label Label) error {
	clone := label
	r.labels[label.ID] = &clone
	return nil
}

func (r *stubRepo) LabelsForWorkspace(_ context.Context, workspaceID string) ([]Label, error) {
	var out []Label
	for _, label := range r.labels {
		if label.WorkspaceID == workspaceID {
			out = append(out, *label)
		}
	}
	return out, nil
}

func (r *stubRepo) LabelByID(_ context.Context, id string) (*Label, error) {
	label, ok := r.labels[id]
	if !ok {
		return nil, ErrLabelNotFound
	}
	return label, nil
}

func (r *stubRepo) DeleteLabel(_ context.Context, id string) error {
	delete(r.labels, id)
	return nil
}

func (r *stubRepo) AttachLabel(_ context.Context, taskID, labelID string) error {
	r.attached[taskID] = append(r.attached[taskID], labelID)
	return nil
}

func (r *stubRepo) DetachLabel(_ context.Context, taskID, labelID string) error {
	return nil
}

func (r *stubRepo) AddComment(_ context.Context, comment Comment) error {
	r.comments[comment.TaskID] = append(r.comments[comment.TaskID], comment)
	return nil
}

func (r *stubRepo) Comments(_ context.Context, taskID string) ([]Comment, error) {
	return r.comments[taskID], nil
}

func (r *stubRepo) Activities(_ context.Context, taskID string, limit int) ([]Activity, error) {
	acts := r.activities[taskID]
	if len(acts) > limit {
		acts = acts[:limit]
	}
	return acts, nil
}

type stubMembers map[string]bool // "workspace/user" -> present

func (m stubMembers) WorkspaceRole(_ context.Context, workspaceID, userID string) (authz.Role, error) {
	if m[workspaceID+"/"+userID] {
		return authz.RoleMember, nil
	}
	return "", authz.ErrNoMembership
}

type stubNotifier struct {
	assigned []string
}

func (n *stubNotifier) NotifyTaskAssigned(_ context.Context, userID, _, _ string) error {
	n.assigned = append(n.assigned, userID)
	return nil
}

type stubEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *stubEvents) Dispatch(_ context.Context, _, event string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *stubEvents) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func newService(repo Repository) *Service {
	return NewService(repo, nil, nil, nil, zerolog.Nop())
}

func createTask(t *testing.T, svc *Service, repo *stubRepo) *Task {
	t.Helper()
	task, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Ship the release",
		CreatedBy:   "user1",
	})
	require.NoError(t, err)
	return task
}

func TestCompletedAtSetWhenStatusBecomesDone(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	task := createTask(t, svc, repo)

	done := StatusDone
	updated, err := svc.Update(context.Background(), task.ID, "user1", UpdateParams{Status: &done})
	require.NoError(t, err)
	require.Equal(t, StatusDone, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	todo := StatusTodo
	updated, err = svc.Update(context.Background(), task.ID, "user1", UpdateParams{Status: &todo})
	require.NoError(t, err)
	require.Nil(t, updated.CompletedAt)
}

func TestUpdateRecordsActivityPerChangedField(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	task := createTask(t, svc, repo)

	title := "Ship the hotfix"
	high := PriorityHigh
	_, err := svc.Update(context.Background(), task.ID, "user2", UpdateParams{
		Title:    &title,
		Priority: &high,
	})
	require.NoError(t, err)

	acts, err := svc.Activities(context.Background(), task.ID, 50)
	require.NoError(t, err)
	require.Len(t, acts, 2)

	fields := map[string]Activity{}
	for _, a := range acts {
		fields[a.Field] = a
	}
	require.Equal(t, "Ship the release", fields["title"].OldValue)
	require.Equal(t, "Ship the hotfix", fields["title"].NewValue)
	require.Equal(t, "medium", fields["priority"].OldValue)
	require.Equal(t, "high", fields["priority"].NewValue)
	require.Equal(t, "user2", fields["title"].ActorID)
}

func TestUpdateWithNoChangesRecordsNothing(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	task := createTask(t, svc, repo)

	sameTitle := task.Title
	_, err := svc.Update(context.Background(), task.ID, "user1", UpdateParams{Title: &sameTitle})
	require.NoError(t, err)

	acts, err := svc.Activities(context.Background(), task.ID, 50)
	require.NoError(t, err)
	require.Empty(t, acts)
}

func TestUpdateRejectsInvalidStatus(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	task := createTask(t, svc, repo)

	bad := Status("archived")
	_, err := svc.Update(context.Background(), task.ID, "user1", UpdateParams{Status: &bad})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestClearAssigneeRecordsActivity(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	task := createTask(t, svc, repo)

	assignee := "user9"
	_, err := svc.Update(context.Background(), task.ID, "user1", UpdateParams{AssigneeID: &assignee})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), task.ID, "user1", UpdateParams{ClearAssignee: true})
	require.NoError(t, err)
	require.Nil(t, updated.AssigneeID)

	acts, err := svc.Activities(context.Background(), task.ID, 50)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, "user9", acts[1].OldValue)
	require.Equal(t, "", acts[1].NewValue)
}

func TestAttachLabelRejectsCrossWorkspace(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	task := createTask(t, svc, repo)

	label, err := svc.CreateLabel(context.Background(), "other-ws", "bug", "#ff0000")
	require.NoError(t, err)

	err = svc.AttachLabel(context.Background(), task.ID, label.ID)
	require.ErrorIs(t, err, ErrLabelNotFound)

	ours, err := svc.CreateLabel(context.Background(), "ws1", "bug", "#ff0000")
	require.NoError(t, err)
	require.NoError(t, svc.AttachLabel(context.Background(), task.ID, ours.ID))
}

func TestCreateSanitizesTitle(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	task, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "<script>alert(1)</script>Plan sprint",
		CreatedBy:   "user1",
	})
	require.NoError(t, err)
	require.Equal(t, "Plan sprint", task.Title)
}

func TestAssigneeMustBeWorkspaceMember(t *testing.T) {
	repo := newStubRepo()
	members := stubMembers{"ws1/user2": true}
	svc := NewService(repo, members, nil, nil, zerolog.Nop())

	outsider := "stranger"
	_, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Ship the release",
		CreatedBy:   "user1",
		AssigneeID:  &outsider,
	})
	require.ErrorIs(t, err, ErrAssigneeNotMember)

	member := "user2"
	task, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Ship the release",
		CreatedBy:   "user1",
		AssigneeID:  &member,
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), task.ID, "user1", UpdateParams{AssigneeID: &outsider})
	require.ErrorIs(t, err, ErrAssigneeNotMember)
}

func TestAssignmentNotifiesAssignee(t *testing.T) {
	repo := newStubRepo()
	members := stubMembers{"ws1/user1": true, "ws1/user2": true}
	notifier := &stubNotifier{}
	svc := NewService(repo, members, notifier, nil, zerolog.Nop())

	assignee := "user2"
	task, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Ship the release",
		CreatedBy:   "user1",
		AssigneeID:  &assignee,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"user2"}, notifier.assigned)

	// reassigning to the actor themselves stays quiet
	self := "user1"
	_, err = svc.Update(context.Background(), task.ID, "user1", UpdateParams{AssigneeID: &self})
	require.NoError(t, err)
	require.Equal(t, []string{"user2"}, notifier.assigned)
}

func TestCompletionDispatchesWebhookEvent(t *testing.T) {
	repo := newStubRepo()
	events := &stubEvents{}
	svc := NewService(repo, nil, nil, events, zerolog.Nop())
	task := createTask(t, svc, repo)

	done := StatusDone
	_, err := svc.Update(context.Background(), task.ID, "user1", UpdateParams{Status: &done})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, event := range events.seen() {
			if event == "task.completed" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
