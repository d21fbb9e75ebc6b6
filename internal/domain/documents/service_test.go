package documents

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubRepo mimics the transactional repository: every update appends a
// version row and bumps the counter.
type stubRepo struct {
	Repository

	docs          map[string]*Document
	versions      map[string][]Version
	activities    map[string][]Activity
	collaborators map[string][]Collaborator
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		docs:          map[string]*Document{},
		versions:      map[string][]Version{},
		activities:    map[string][]Activity{},
		collaborators: map[string][]Collaborator{},
	}
}

func (s *stubRepo) CreateDocument(_ context.Context, params CreateParams) (*Document, error) {
	doc := &Document{
		ID: params.ID, WorkspaceID: params.WorkspaceID,
		Title: params.Title, Content: params.Content,
		Version: 1, CreatedBy: params.CreatedBy, CreatedAt: time.Now(),
	}
	s.docs[params.ID] = doc
	s.versions[params.ID] = []Version{{DocumentID: params.ID, Version: 1, Title: params.Title, Content: params.Content, EditedBy: params.CreatedBy}}
	s.activities[params.ID] = []Activity{{DocumentID: params.ID, ActorID: params.CreatedBy, Action: "created"}}
	return doc, nil
}

func (s *stubRepo) DocumentByID(_ context.Context, id string) (*Document, error) {
	if doc, ok := s.docs[id]; ok {
		copied := *doc
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *stubRepo) UpdateDocument(_ context.Context, id, title, content, actorID, detail string) (*Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Version++
	doc.Title = title
	doc.Content = content
	s.versions[id] = append(s.versions[id], Version{DocumentID: id, Version: doc.Version, Title: title, Content: content, EditedBy: actorID})
	s.activities[id] = append(s.activities[id], Activity{DocumentID: id, ActorID: actorID, Action: "updated", Detail: detail})
	copied := *doc
	return &copied, nil
}

func (s *stubRepo) VersionByNumber(_ context.Context, documentID string, version int) (*Version, error) {
	for _, v := range s.versions[documentID] {
		if v.Version == version {
			return &v, nil
		}
	}
	return nil, ErrVersionNotFound
}

func (s *stubRepo) Collaborators(_ context.Context, documentID string) ([]Collaborator, error) {
	return s.collaborators[documentID], nil
}

func (s *stubRepo) CollaboratorRole(_ context.Context, documentID, userID string) (CollaboratorRole, error) {
	for _, c := range s.collaborators[documentID] {
		if c.UserID == userID {
			return c.Role, nil
		}
	}
	return "", ErrNotCollaborator
}

func newService(repo Repository) *Service {
	return NewService(repo, zerolog.Nop())
}

func createDoc(t *testing.T, svc *Service) *Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), "ws-1", "Roadmap", "<p>v1</p>", "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, doc.Version)
	return doc
}

func TestUpdateBumpsVersionAndRecordsDiff(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	doc := createDoc(t, svc)

	title := "Roadmap 2026"
	updated, err := svc.Update(context.Background(), doc.ID, UpdateParams{Title: &title}, "user-2")
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)

	activities := repo.activities[doc.ID]
	require.Len(t, activities, 2)
	require.Equal(t, "changed title", activities[1].Detail)
	require.Equal(t, "user-2", activities[1].ActorID)
}

func TestUpdateNoChanges(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	doc := createDoc(t, svc)

	title := "Roadmap"
	_, err := svc.Update(context.Background(), doc.ID, UpdateParams{Title: &title}, "user-1")
	require.ErrorIs(t, err, ErrNothingToChange)
	require.Equal(t, 1, repo.docs[doc.ID].Version)
}

func TestVersionsStrictlyIncreaseAcrossRestore(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	doc := createDoc(t, svc)

	content := "<p>v2</p>"
	_, err := svc.Update(context.Background(), doc.ID, UpdateParams{Content: &content}, "user-1")
	require.NoError(t, err)

	restored, err := svc.Restore(context.Background(), doc.ID, 1, "user-1")
	require.NoError(t, err)
	// restore creates version 3; numbers 1 and 2 are never reused
	require.Equal(t, 3, restored.Version)
	require.Equal(t, "<p>v1</p>", restored.Content)

	seen := map[int]bool{}
	for _, v := range repo.versions[doc.ID] {
		require.False(t, seen[v.Version], "version %d reused", v.Version)
		seen[v.Version] = true
	}
	require.Len(t, repo.versions[doc.ID], 3)
}

func TestRestoreUnknownVersion(t *testing.T) {
	svc := newService(newStubRepo())
	doc := createDoc(t, svc)

	_, err := svc.Restore(context.Background(), doc.ID, 99, "user-1")
	require.ErrorIs(t, err, ErrVersionNotFound)
}

func TestUpdateSanitizesContent(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	doc := createDoc(t, svc)

	content := `<p>ok</p><script>alert(1)</script>`
	updated, err := svc.Update(context.Background(), doc.ID, UpdateParams{Content: &content}, "user-1")
	require.NoError(t, err)
	require.NotContains(t, updated.Content, "<script>")
}

func TestCanEdit(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	doc := createDoc(t, svc)

	// no collaborator rows: any workspace member may edit
	ok, err := svc.CanEdit(context.Background(), repo.docs[doc.ID], "user-9")
	require.NoError(t, err)
	require.True(t, ok)

	repo.collaborators[doc.ID] = []Collaborator{
		{DocumentID: doc.ID, UserID: "editor-1", Role: CollaboratorEditor},
		{DocumentID: doc.ID, UserID: "viewer-1", Role: CollaboratorViewer},
	}

	ok, err = svc.CanEdit(context.Background(), repo.docs[doc.ID], "editor-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanEdit(context.Background(), repo.docs[doc.ID], "viewer-1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanEdit(context.Background(), repo.docs[doc.ID], "outsider")
	require.NoError(t, err)
	require.False(t, ok)

	// the creator always may
	ok, err = svc.CanEdit(context.Background(), repo.docs[doc.ID], "user-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanManageCollaborators(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	doc := createDoc(t, svc)

	// no open-document fallback: a plain member may edit an unshared
	// document but may not change its sharing list
	ok, err := svc.CanManageCollaborators(context.Background(), repo.docs[doc.ID], "user-9")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanManageCollaborators(context.Background(), repo.docs[doc.ID], "user-1")
	require.NoError(t, err)
	require.True(t, ok)

	repo.collaborators[doc.ID] = []Collaborator{
		{DocumentID: doc.ID, UserID: "editor-1", Role: CollaboratorEditor},
		{DocumentID: doc.ID, UserID: "viewer-1", Role: CollaboratorViewer},
	}

	ok, err = svc.CanManageCollaborators(context.Background(), repo.docs[doc.ID], "editor-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanManageCollaborators(context.Background(), repo.docs[doc.ID], "viewer-1")
	require.NoError(t, err)
	require.False(t, ok)
}
