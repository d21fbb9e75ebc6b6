package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "documents").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, workspaceID, title, content, creatorID string) (*Document, error) {
	title = sanitize.Text(strings.TrimSpace(title))
	if title == "" {
		return nil, fmt.Errorf("title: missing")
	}

	return s.repo.CreateDocument(ctx, CreateParams{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Title:       title,
		Content:     sanitize.Fragment(content),
		CreatedBy:   creatorID,
	})
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.DocumentByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	return s.repo.DocumentsForWorkspace(ctx, filter)
}

// Update computes which tracked fields changed, then writes the new state
// plus the version and activity rows in one transaction. Unchanged
// requests return ErrNothingToChange.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams, actorID string) (*Document, error) {
	current, err := s.repo.DocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	title := current.Title
	content := current.Content
	var changed []string

	if params.Title != nil {
		next := sanitize.Text(strings.TrimSpace(*params.Title))
		if next == "" {
			return nil, fmt.Errorf("title: missing")
		}
		if next != current.Title {
			title = next
			changed = append(changed, "title")
		}
	}
	if params.Content != nil {
		next := sanitize.Fragment(*params.Content)
		if next != current.Content {
			content = next
			changed = append(changed, "content")
		}
	}

	if len(changed) == 0 {
		return nil, ErrNothingToChange
	}

	doc, err := s.repo.UpdateDocument(ctx, id, title, content, actorID, "changed "+strings.Join(changed, ", "))
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("document_id", id).Int("version", doc.Version).Msg("document updated")
	return doc, nil
}

// Restore copies an old version's state forward as a brand new version;
// the counter keeps increasing, so restored version numbers are never
// reused.
func (s *Service) Restore(ctx context.Context, id string, versionNumber int, actorID string) (*Document, error) {
	version, err := s.repo.VersionByNumber(ctx, id, versionNumber)
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.UpdateDocument(ctx, id, version.Title, version.Content, actorID,
		fmt.Sprintf("restored from version %d", versionNumber))
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("document_id", id).Int("restored_from", versionNumber).Int("version", doc.Version).Msg("document restored")
	return doc, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteDocument(ctx, id)
}

func (s *Service) Versions(ctx context.Context, documentID string) ([]Version, error) {
	return s.repo.Versions(ctx, documentID)
}

func (s *Service) Collaborators(ctx context.Context, documentID string) ([]Collaborator, error) {
	return s.repo.Collaborators(ctx, documentID)
}

func (s *Service) AddCollaborator(ctx context.Context, documentID, userID string, role CollaboratorRole) error {
	if role != CollaboratorEditor && role != CollaboratorViewer {
		return fmt.Errorf("role: must be editor or viewer")
	}
	return s.repo.AddCollaborator(ctx, Collaborator{
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
		AddedAt:    time.Now(),
	})
}

func (s *Service) RemoveCollaborator(ctx context.Context, documentID, userID string) error {
	return s.repo.RemoveCollaborator(ctx, documentID, userID)
}

func (s *Service) Activities(ctx context.Context, documentID string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.Activities(ctx, documentID, limit)
}

// CanEdit reports whether the user may write the document: its creator,
// or an editor collaborator. Documents without collaborator rows are
// workspace-writable and callers fall back to workspace membership.
func (s *Service) CanEdit(ctx context.Context, doc *Document, userID string) (bool, error) {
	if doc.CreatedBy == userID {
		return true, nil
	}
	collaborators, err := s.repo.Collaborators(ctx, doc.ID)
	if err != nil {
		return false, err
	}
	if len(collaborators) == 0 {
		return true, nil
	}
	role, err := s.repo.CollaboratorRole(ctx, doc.ID, userID)
	if err != nil {
		if errors.Is(err, ErrNotCollaborator) {
			return false, nil
		}
		return false, err
	}
	return role == CollaboratorEditor, nil
}

// CanManageCollaborators reports whether the user may change the sharing
// list. Unlike CanEdit there is no open-document fallback: only the
// creator or an explicit editor qualifies.
func (s *Service) CanManageCollaborators(ctx context.Context, doc *Document, userID string) (bool, error) {
	if doc.CreatedBy == userID {
		return true, nil
	}
	role, err := s.repo.CollaboratorRole(ctx, doc.ID, userID)
	if err != nil {
		if errors.Is(err, ErrNotCollaborator) {
			return false, nil
		}
		return false, err
	}
	return role == CollaboratorEditor, nil
}
