package chatstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mallard-ai/mallard/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ Store = (*Postgres)(nil)

// Postgres is the PostgreSQL-backed Store. Message content is embedded on
// insert via the configured embeddings provider and stored in a pgvector
// column, so SearchMessages is an approximate nearest-neighbour query.
//
// All operations are safe for concurrent use.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewPostgres connects to the database at dsn, registers pgvector types on
// every connection, and runs Migrate. The embedding column dimension is taken
// from embedder.Dimensions(); changing embedding models after the first
// migration requires a manual schema change.
func NewPostgres(ctx context.Context, dsn string, embedder embeddings.Provider) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("chatstore: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("chatstore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("chatstore: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("chatstore: migrate: %w", err)
	}

	return &Postgres{pool: pool, embedder: embedder}, nil
}

// Close releases all connections held by the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

const ddlChats = `
CREATE TABLE IF NOT EXISTS chats (
    id          UUID         PRIMARY KEY,
    name        TEXT         NOT NULL,
    model       TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chats_updated_at
    ON chats (updated_at DESC);

CREATE TABLE IF NOT EXISTS chat_files (
    id            UUID         PRIMARY KEY,
    chat_id       UUID         NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
    name          TEXT         NOT NULL,
    content_type  TEXT         NOT NULL DEFAULT '',
    size          BIGINT       NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_files_chat_id
    ON chat_files (chat_id);
`

// ddlMessages returns the messages DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlMessages(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS messages (
    id          UUID         PRIMARY KEY,
    chat_id     UUID         NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
    role        TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_id
    ON messages (chat_id, created_at);

CREATE INDEX IF NOT EXISTS idx_messages_embedding
    ON messages USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, indexes, and the pgvector
// extension exist. Idempotent and safe to run on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlChats,
		ddlMessages(embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("chatstore migrate: %w", err)
		}
	}
	return nil
}

// CreateChat implements Store.
func (p *Postgres) CreateChat(ctx context.Context, name, model string) (*Chat, error) {
	chat := &Chat{
		ID:    uuid.New(),
		Name:  name,
		Model: model,
	}
	const q = `
		INSERT INTO chats (id, name, model)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`
	if err := p.pool.QueryRow(ctx, q, chat.ID, chat.Name, chat.Model).
		Scan(&chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, fmt.Errorf("chatstore: create chat: %w", err)
	}
	return chat, nil
}

// GetChat implements Store.
func (p *Postgres) GetChat(ctx context.Context, id uuid.UUID) (*Chat, error) {
	const q = `
		SELECT id, name, model, created_at, updated_at
		FROM   chats
		WHERE  id = $1`
	var chat Chat
	err := p.pool.QueryRow(ctx, q, id).
		Scan(&chat.ID, &chat.Name, &chat.Model, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatstore: get chat: %w", err)
	}
	return &chat, nil
}

// ListChats implements Store.
func (p *Postgres) ListChats(ctx context.Context) ([]Chat, error) {
	const q = `
		SELECT id, name, model, created_at, updated_at
		FROM   chats
		ORDER  BY updated_at DESC`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chatstore: list chats: %w", err)
	}
	chats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Chat, error) {
		var c Chat
		err := row.Scan(&c.ID, &c.Name, &c.Model, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("chatstore: scan chats: %w", err)
	}
	if chats == nil {
		chats = []Chat{}
	}
	return chats, nil
}

// RenameChat implements Store.
func (p *Postgres) RenameChat(ctx context.Context, id uuid.UUID, name string) error {
	const q = `
		UPDATE chats
		SET    name = $2, updated_at = now()
		WHERE  id = $1`
	tag, err := p.pool.Exec(ctx, q, id, name)
	if err != nil {
		return fmt.Errorf("chatstore: rename chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat implements Store. Messages and files go with the chat via
// ON DELETE CASCADE.
func (p *Postgres) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("chatstore: delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage implements Store. The content is embedded before insert so the
// message is immediately searchable.
func (p *Postgres) AddMessage(ctx context.Context, chatID uuid.UUID, role, content string) (*Message, error) {
	vec, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("chatstore: embed message: %w", err)
	}

	msg := &Message{
		ID:      uuid.New(),
		ChatID:  chatID,
		Role:    role,
		Content: content,
	}
	const q = `
		INSERT INTO messages (id, chat_id, role, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	if err := p.pool.QueryRow(ctx, q, msg.ID, msg.ChatID, msg.Role, msg.Content, pgvector.NewVector(vec)).
		Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("chatstore: add message: %w", err)
	}

	// Touch the chat so ListChats surfaces active conversations first.
	if _, err := p.pool.Exec(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, chatID); err != nil {
		return nil, fmt.Errorf("chatstore: touch chat: %w", err)
	}
	return msg, nil
}

// ListMessages implements Store.
func (p *Postgres) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	const q = `
		SELECT id, chat_id, role, content, created_at
		FROM   messages
		WHERE  chat_id = $1
		ORDER  BY created_at`
	rows, err := p.pool.Query(ctx, q, chatID)
	if err != nil {
		return nil, fmt.Errorf("chatstore: list messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("chatstore: scan messages: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// AddFile implements Store.
func (p *Postgres) AddFile(ctx context.Context, chatID uuid.UUID, name, contentType string, size int64) (*File, error) {
	f := &File{
		ID:          uuid.New(),
		ChatID:      chatID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
	}
	const q = `
		INSERT INTO chat_files (id, chat_id, name, content_type, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	if err := p.pool.QueryRow(ctx, q, f.ID, f.ChatID, f.Name, f.ContentType, f.Size).
		Scan(&f.CreatedAt); err != nil {
		return nil, fmt.Errorf("chatstore: add file: %w", err)
	}
	return f, nil
}

// ListFiles implements Store.
func (p *Postgres) ListFiles(ctx context.Context, chatID uuid.UUID) ([]File, error) {
	const q = `
		SELECT id, chat_id, name, content_type, size, created_at
		FROM   chat_files
		WHERE  chat_id = $1
		ORDER  BY created_at`
	rows, err := p.pool.Query(ctx, q, chatID)
	if err != nil {
		return nil, fmt.Errorf("chatstore: list files: %w", err)
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (File, error) {
		var f File
		err := row.Scan(&f.ID, &f.ChatID, &f.Name, &f.ContentType, &f.Size, &f.CreatedAt)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("chatstore: scan files: %w", err)
	}
	if files == nil {
		files = []File{}
	}
	return files, nil
}

// SearchMessages implements Store. The query text is embedded with the same
// provider used on insert and compared by cosine distance.
func (p *Postgres) SearchMessages(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chatstore: embed query: %w", err)
	}

	const q = `
		SELECT id, chat_id, role, content, created_at,
		       embedding <=> $1 AS distance
		FROM   messages
		ORDER  BY distance
		LIMIT  $2`
	rows, err := p.pool.Query(ctx, q, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("chatstore: search messages: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var r SearchResult
		err := row.Scan(&r.Message.ID, &r.Message.ChatID, &r.Message.Role,
			&r.Message.Content, &r.Message.CreatedAt, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("chatstore: scan search results: %w", err)
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}
