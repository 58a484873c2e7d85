package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"parley/auth"
	"parley/domain"
	"parley/errors"
	"parley/services"
)

const defaultSearchLimit = 25

type ChatHandlers struct {
	log     *slog.Logger
	service services.IChatService
}

func NewChatHandlers(log *slog.Logger, service services.IChatService) *ChatHandlers {
	return &ChatHandlers{log: log, service: service}
}

func (h *ChatHandlers) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	views, err := h.service.GetChats(r.Context(), principal.UserID)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ChatHandlers) Members(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	members, err := h.service.GetMembers(conversationID(r), principal.UserID)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ChatHandlers) CreateDM(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	view, err := h.service.CreateDM(r.Context(), principal.UserID, req.Username)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *ChatHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	view, err := h.service.CreateGroup(r.Context(), principal.UserID, req.Name, req.Members)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *ChatHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Content  *string `json:"content"`
		FileLink *string `json:"fileLink"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	view, err := h.service.PostMessage(r.Context(), principal.UserID, conversationID(r), req.Content, req.FileLink)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *ChatHandlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	messageID, err := uuid.Parse(r.PathValue("messageId"))
	if err != nil {
		writeError(h.log, w, errors.Validationf("malformed message id"))
		return
	}

	if err := h.service.DeleteMessage(r.Context(), principal.UserID, messageID); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ChatHandlers) Transcript(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	transcript, err := h.service.DownloadTranscript(r.Context(), principal.UserID, conversationID(r))
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transcript.txt"`)
	_, _ = w.Write([]byte(transcript))
}

func (h *ChatHandlers) Search(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(h.log, w, errors.Validationf("malformed limit"))
			return
		}
		limit = parsed
	}

	views, err := h.service.SearchMessages(r.Context(), principal.UserID,
		conversationID(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ChatHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	if err := h.service.AddMember(r.Context(), principal.UserID, conversationID(r), req.UserID); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ChatHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	if err := h.service.RemoveMember(r.Context(), principal.UserID,
		conversationID(r), r.PathValue("userId")); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ChatHandlers) Leave(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	if err := h.service.LeaveGroup(r.Context(), principal.UserID, conversationID(r)); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ChatHandlers) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	admin, err := h.service.ToggleAdmin(r.Context(), principal.UserID,
		conversationID(r), r.PathValue("userId"))
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"admin": admin})
}

func (h *ChatHandlers) Rename(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	if err := h.service.Rename(r.Context(), principal.UserID, conversationID(r), req.Name); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ChatHandlers) SetMode(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Disappearing bool `json:"disappearing"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	if err := h.service.SetMode(r.Context(), principal.UserID, conversationID(r), req.Disappearing); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ChatHandlers) SetPicture(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Picture string `json:"picture"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	if err := h.service.SetConversationPicture(r.Context(), principal.UserID,
		conversationID(r), req.Picture); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func conversationID(r *http.Request) domain.ConversationID {
	return domain.ConversationID(r.PathValue("id"))
}
