package documents

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionNotFound = errors.New("document version not found")
	ErrNotCollaborator = errors.New("not a document collaborator")
	ErrNothingToChange = errors.New("no tracked fields changed")
)

type Document struct {
	ID          string
	WorkspaceID string
	Title       string
	Content     string
	// Version is the latest version number; the versions table holds every
	// version including this one. Strictly increasing, never reused.
	Version   int
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Version struct {
	DocumentID string
	Version    int
	Title      string
	Content    string
	EditedBy   string
	CreatedAt  time.Time
}

type CollaboratorRole string

const (
	CollaboratorEditor CollaboratorRole = "editor"
	CollaboratorViewer CollaboratorRole = "viewer"
)

type Collaborator struct {
	DocumentID string
	UserID     string
	Role       CollaboratorRole
	AddedAt    time.Time
}

type Activity struct {
	ID         string
	DocumentID string
	ActorID    string
	Action     string // "created", "updated", "restored", "collaborator_added", ...
	Detail     string
	CreatedAt  time.Time
}

type CreateParams struct {
	ID          string
	WorkspaceID string
	Title       string
	Content     string
	CreatedBy   string
}

type ListFilter struct {
	WorkspaceID string
	Limit       int
	AfterTime   time.Time
	AfterID     string
}

type ListResult struct {
	Documents  []Document
	NextCursor string
}

type UpdateParams struct {
	Title   *string
	Content *string
}

type Repository interface {
	// CreateDocument inserts the document, its version-1 row, and the
	// "created" activity in one transaction.
	CreateDocument(ctx context.Context, params CreateParams) (*Document, error)
	DocumentByID(ctx context.Context, id string) (*Document, error)
	// DocumentsForWorkspace pages by (updated_at, id) descending, most
	// recently edited first.
	DocumentsForWorkspace(ctx context.Context, filter ListFilter) (ListResult, error)
	// UpdateDocument bumps the version counter, writes the new state on the
	// parent, inserts the new version row, and appends the activity — all in
	// one transaction. The supplied state is the full new state.
	UpdateDocument(ctx context.Context, id string, title, content, actorID, activityDetail string) (*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	Versions(ctx context.Context, documentID string) ([]Version, error)
	VersionByNumber(ctx context.Context, documentID string, version int) (*Version, error)

	Collaborators(ctx context.Context, documentID string) ([]Collaborator, error)
	CollaboratorRole(ctx context.Context, documentID, userID string) (CollaboratorRole, error)
	AddCollaborator(ctx context.Context, collaborator Collaborator) error
	RemoveCollaborator(ctx context.Context, documentID, userID string) error

	Activities(ctx context.Context, documentID string, limit int) ([]Activity, error)
}
