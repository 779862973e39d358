// Package chatstore persists chats, their messages, and attached files.
//
// Two implementations are provided: [Postgres], backed by a pgx connection
// pool with pgvector-powered semantic search over message embeddings, and
// [Mem], an in-memory store with the same behaviour for tests and store-less
// deployments.
package chatstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a chat, message, or file does not exist.
var ErrNotFound = errors.New("chatstore: not found")

// Chat is one conversation.
type Chat struct {
	ID        uuid.UUID
	Name      string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn within a chat.
type Message struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
}

// File records an attachment uploaded into a chat.
type File struct {
	ID          uuid.UUID
	ChatID      uuid.UUID
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// SearchResult pairs a message with its semantic distance to the query.
// Lower distance means more similar.
type SearchResult struct {
	Message  Message
	Distance float64
}

// Store is the persistence abstraction used by the chat routes.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateChat inserts a new chat and returns it with ID and timestamps set.
	CreateChat(ctx context.Context, name, model string) (*Chat, error)

	// GetChat returns the chat with the given ID, or ErrNotFound.
	GetChat(ctx context.Context, id uuid.UUID) (*Chat, error)

	// ListChats returns all chats, most recently updated first.
	ListChats(ctx context.Context) ([]Chat, error)

	// RenameChat updates the chat's name, or returns ErrNotFound.
	RenameChat(ctx context.Context, id uuid.UUID, name string) error

	// DeleteChat removes the chat and all its messages and files.
	DeleteChat(ctx context.Context, id uuid.UUID) error

	// AddMessage appends a message to a chat and indexes it for search.
	AddMessage(ctx context.Context, chatID uuid.UUID, role, content string) (*Message, error)

	// ListMessages returns a chat's messages in insertion order.
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)

	// AddFile records a file attachment on a chat.
	AddFile(ctx context.Context, chatID uuid.UUID, name, contentType string, size int64) (*File, error)

	// ListFiles returns a chat's attachments in upload order.
	ListFiles(ctx context.Context, chatID uuid.UUID) ([]File, error)

	// SearchMessages returns the topK messages across all chats most
	// semantically similar to query, most similar first.
	SearchMessages(ctx context.Context, query string, topK int) ([]SearchResult, error)
}
