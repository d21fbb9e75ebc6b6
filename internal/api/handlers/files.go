package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/files"
)

type FilesHandler struct {
	Service *files.Service
	Opener  BlobOpener
	Guard   *authz.Guard
	Env     string
}

// BlobOpener streams a stored blob back out. Satisfied by the uploads
// store.
type BlobOpener interface {
	Open(path string) (io.ReadSeekCloser, error)
}

type fileResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	UploaderID  string    `json:"uploader_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

func fileJSON(f *files.File) fileResponse {
	return fileResponse{
		ID:          f.ID,
		WorkspaceID: f.WorkspaceID,
		UploaderID:  f.UploaderID,
		Name:        f.Name,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		CreatedAt:   f.CreatedAt,
	}
}

func (h *FilesHandler) load(w http.ResponseWriter, r *http.Request) (*files.File, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	file, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, file.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return file, true
}

// Upload accepts a multipart form with a single "file" part.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		apierr.Validation(w, r, errors.New("file: missing multipart part"), h.Env)
		return
	}
	defer part.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	file, err := h.Service.Upload(r.Context(), workspaceID, id.UserID, header.Filename, contentType, part)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrBadFileType):
			apierr.Validation(w, r, err, h.Env)
		case errors.Is(err, files.ErrTooLarge):
			apierr.Write(w, r, http.StatusRequestEntityTooLarge, "file exceeds the size limit", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusCreated, fileJSON(file))
}

func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	list, err := h.Service.ListForWorkspace(r.Context(), workspaceID, 200)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]fileResponse, 0, len(list))
	for i := range list {
		items = append(items, fileJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fileJSON(file))
}

// Download streams the blob with the stored content type.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	file, ok := h.load(w, r)
	if !ok {
		return
	}
	blob, err := h.Opener.Open(file.StoragePath)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, blob)
}

func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	file, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if _, decision := h.Guard.CreatorOrRole(r.Context(), id, file.WorkspaceID, file.UploaderID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), file.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
