package chatstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mallard-ai/mallard/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ Store = (*Mem)(nil)

// Mem is the in-memory Store used in tests and store-less deployments. It
// mirrors the Postgres implementation's behaviour, including cosine-distance
// search over message embeddings.
type Mem struct {
	embedder embeddings.Provider

	mu       sync.RWMutex
	chats    map[uuid.UUID]*Chat
	messages map[uuid.UUID][]Message
	files    map[uuid.UUID][]File
	vectors  map[uuid.UUID][]float32
}

// NewMem constructs an empty in-memory store.
func NewMem(embedder embeddings.Provider) *Mem {
	return &Mem{
		embedder: embedder,
		chats:    make(map[uuid.UUID]*Chat),
		messages: make(map[uuid.UUID][]Message),
		files:    make(map[uuid.UUID][]File),
		vectors:  make(map[uuid.UUID][]float32),
	}
}

// CreateChat implements Store.
func (m *Mem) CreateChat(_ context.Context, name, model string) (*Chat, error) {
	now := time.Now()
	chat := &Chat{
		ID:        uuid.New(),
		Name:      name,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chat.ID] = chat
	out := *chat
	return &out, nil
}

// GetChat implements Store.
func (m *Mem) GetChat(_ context.Context, id uuid.UUID) (*Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *chat
	return &out, nil
}

// ListChats implements Store.
func (m *Mem) ListChats(_ context.Context) ([]Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chats := make([]Chat, 0, len(m.chats))
	for _, c := range m.chats {
		chats = append(chats, *c)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// RenameChat implements Store.
func (m *Mem) RenameChat(_ context.Context, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return ErrNotFound
	}
	chat.Name = name
	chat.UpdatedAt = time.Now()
	return nil
}

// DeleteChat implements Store.
func (m *Mem) DeleteChat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[id]; !ok {
		return ErrNotFound
	}
	for _, msg := range m.messages[id] {
		delete(m.vectors, msg.ID)
	}
	delete(m.chats, id)
	delete(m.messages, id)
	delete(m.files, id)
	return nil
}

// AddMessage implements Store.
func (m *Mem) AddMessage(ctx context.Context, chatID uuid.UUID, role, content string) (*Message, error) {
	vec, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	msg := Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.messages[chatID] = append(m.messages[chatID], msg)
	m.vectors[msg.ID] = vec
	chat.UpdatedAt = msg.CreatedAt
	out := msg
	return &out, nil
}

// ListMessages implements Store.
func (m *Mem) ListMessages(_ context.Context, chatID uuid.UUID) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]Message, len(m.messages[chatID]))
	copy(msgs, m.messages[chatID])
	return msgs, nil
}

// AddFile implements Store.
func (m *Mem) AddFile(_ context.Context, chatID uuid.UUID, name, contentType string, size int64) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return nil, ErrNotFound
	}
	f := File{
		ID:          uuid.New(),
		ChatID:      chatID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now(),
	}
	m.files[chatID] = append(m.files[chatID], f)
	out := f
	return &out, nil
}

// ListFiles implements Store.
func (m *Mem) ListFiles(_ context.Context, chatID uuid.UUID) ([]File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make([]File, len(m.files[chatID]))
	copy(files, m.files[chatID])
	return files, nil
}

// SearchMessages implements Store.
func (m *Mem) SearchMessages(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]SearchResult, 0)
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			mv, ok := m.vectors[msg.ID]
			if !ok {
				continue
			}
			results = append(results, SearchResult{
				Message:  msg,
				Distance: cosineDistance(vec, mv),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosineDistance is 1 - cosine similarity, matching pgvector's <=> operator.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
