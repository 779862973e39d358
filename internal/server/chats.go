package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mallard-ai/mallard/internal/chatstore"
)

// defaultSearchTopK is used when /api/chats/search omits top_k.
const defaultSearchTopK = 10

// JSON shapes for the chat store routes.
type chatJSON struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageJSON struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type fileJSON struct {
	ID          uuid.UUID `json:"id"`
	ChatID      uuid.UUID `json:"chat_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

type searchResultJSON struct {
	Message  messageJSON `json:"message"`
	Distance float64     `json:"distance"`
}

func toChatJSON(c *chatstore.Chat) chatJSON {
	return chatJSON{ID: c.ID, Name: c.Name, Model: c.Model, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func toMessageJSON(m *chatstore.Message) messageJSON {
	return messageJSON{ID: m.ID, ChatID: m.ChatID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

func toFileJSON(f *chatstore.File) fileJSON {
	return fileJSON{ID: f.ID, ChatID: f.ChatID, Name: f.Name, ContentType: f.ContentType, Size: f.Size, CreatedAt: f.CreatedAt}
}

// requireStore guards the chat store routes; returns nil and writes a 503
// when no store is configured.
func (s *Server) requireStore(w http.ResponseWriter) chatstore.Store {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no chat store configured")
		return nil
	}
	return s.store
}

// chatID parses the {id} path value; writes a 400 and returns false on a
// malformed UUID.
func chatID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return uuid.Nil, false
	}
	return id, true
}

// storeError maps chat store failures to HTTP statuses.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

type createChatRequest struct {
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	var body createChatRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	chat, err := store.CreateChat(r.Context(), body.Name, body.Model)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChatJSON(chat))
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	chats, err := store.ListChats(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]chatJSON, 0, len(chats))
	for i := range chats {
		out = append(out, toChatJSON(&chats[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	chat, err := store.GetChat(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatJSON(chat))
}

type renameChatRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	var body renameChatRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if err := store.RenameChat(r.Context(), id, body.Name); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	if err := store.DeleteChat(r.Context(), id); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type addMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	var body addMessageRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Role == "" || body.Content == "" {
		writeError(w, http.StatusBadRequest, "role and content must not be empty")
		return
	}
	msg, err := store.AddMessage(r.Context(), id, body.Role, body.Content)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageJSON(msg))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	msgs, err := store.ListMessages(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]messageJSON, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageJSON(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAddFile records an uploaded attachment's metadata on a chat. The
// upload arrives as a multipart "file" field; only name, content type, and
// size are persisted.
func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	_ = file.Close()

	rec, err := store.AddFile(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFileJSON(rec))
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	files, err := store.ListFiles(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]fileJSON, 0, len(files))
	for i := range files {
		out = append(out, toFileJSON(&files[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSearchMessages runs a semantic search across all chats. Query
// parameters: q (required), top_k (optional, default 10).
func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	topK := defaultSearchTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	results, err := store.SearchMessages(r.Context(), query, topK)
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]searchResultJSON, 0, len(results))
	for i := range results {
		out = append(out, searchResultJSON{
			Message:  toMessageJSON(&results[i].Message),
			Distance: results[i].Distance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
