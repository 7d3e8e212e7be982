package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/okian/unitry/internal/adapters/uploads"
	"github.com/okian/unitry/pkg/logger"
)

// SessionCookie identifies a visitor's upload slot.
const SessionCookie = "unitry_session"

// multipart framing allowance on top of the file limit
const multipartOverhead = 64 << 10

// SessionID returns the visitor session carried by r, or "".
func SessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// UploadHandler accepts preview uploads and serves them back.
type UploadHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps Dependencies, log logger.Logger) *UploadHandler {
	return &UploadHandler{deps: deps, logger: log}
}

func (h *UploadHandler) session(w http.ResponseWriter, r *http.Request) string {
	if id := SessionID(r); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     h.deps.Prefixer().URL("/"),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// HandleUpload handles POST {api}/uploads with a multipart "file" field.
// The upload replaces the session's previous one.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload"
	limit := h.deps.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(r.Context(), w, h.logger, WrapKind(op, uploads.ErrTooLarge, err))
			return
		}
		fail(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, fmt.Errorf("missing file field: %w", err)))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		fail(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}

	session := h.session(w, r)
	view, err := h.deps.Upload(r.Context(), session, header.Filename, data)
	if err != nil {
		fail(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	w.Header().Set("Location", view.URL)
	writeJSON(w, http.StatusCreated, view)
}

// HandleGetUpload handles GET {api}/uploads/{id} requests.
func (h *UploadHandler) HandleGetUpload(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

// HandleGetThumb handles GET {api}/uploads/{id}/thumb requests.
func (h *UploadHandler) HandleGetThumb(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *UploadHandler) serve(w http.ResponseWriter, r *http.Request, thumb bool) {
	const op = "api.get_upload"
	u, err := h.deps.UploadByID(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	data, contentType, etag := u.Data, u.ContentType, u.ETag()
	if thumb {
		data, contentType = u.Thumb, u.ThumbType
		etag = etag[:len(etag)-1] + `-thumb"`
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, "", u.CreatedAt, bytes.NewReader(data))
}
