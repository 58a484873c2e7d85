package httpapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"parley/errors"
)

// UploadHandler receives attachment uploads, sniffs their real content
// type and stores them under a random name. The returned link is what a
// message's fileLink field carries.
type UploadHandler struct {
	log      *slog.Logger
	dir      string
	maxBytes int64
}

// allowedTypes is matched against the sniffed type, not the client header.
var allowedTypes = []string{
	"image/png", "image/jpeg", "image/gif", "image/webp",
	"application/pdf", "text/plain",
	"audio/mpeg", "audio/ogg", "video/mp4",
}

func NewUploadHandler(log *slog.Logger, dir string, maxBytes int64) *UploadHandler {
	return &UploadHandler{log: log, dir: dir, maxBytes: maxBytes}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(h.log, w, errors.Validationf("missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(h.log, w, errors.Validationf("unreadable upload"))
		return
	}

	kind := mimetype.Detect(data)
	if !allowed(kind) {
		writeError(h.log, w, errors.Validationf("unsupported file type %s", kind.String()))
		return
	}

	name := uuid.NewString() + kind.Extension()
	if err := os.WriteFile(filepath.Join(h.dir, name), data, 0o600); err != nil {
		writeError(h.log, w, fmt.Errorf("storing upload: %w", err))
		return
	}

	h.log.Info("Stored upload", "file", name, "type", kind.String(), "bytes", len(data))
	writeJSON(w, http.StatusCreated, map[string]string{"fileLink": "/files/" + name})
}

// Serve exposes stored attachments read-only.
func (h *UploadHandler) Serve() http.Handler {
	return http.StripPrefix("/files/", http.FileServer(http.Dir(h.dir)))
}

func allowed(kind *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if kind.Is(t) {
			return true
		}
	}
	return false
}
