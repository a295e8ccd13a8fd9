package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolmonitor/internal/model"
)

// Ledger stores distribution posts in Postgres.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger connects to dsn.
func NewLedger(ctx context.Context, dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: pool}, nil
}

func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// Append inserts post and returns its id.
func (l *Ledger) Append(ctx context.Context, post model.Post) (string, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	content, err := json.Marshal(post.Content)
	if err != nil {
		return "", fmt.Errorf("marshal distribution: %w", err)
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO distribution_posts (id, post_type, author, channel, posted_at, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, post.ID, post.Type, post.Author, post.Channel, post.Time, content)
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	return post.ID, nil
}

// QueryLatest returns matching posts, newest first.
func (l *Ledger) QueryLatest(ctx context.Context, postType, author string) ([]model.Post, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, post_type, author, channel, posted_at, content
		FROM distribution_posts
		WHERE post_type = $1 AND ($2 = '' OR lower(author) = lower($2))
		ORDER BY seq DESC
	`, postType, author)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}

	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Post, error) {
		var (
			post    model.Post
			content []byte
		)
		if err := row.Scan(&post.ID, &post.Type, &post.Author, &post.Channel, &post.Time, &content); err != nil {
			return model.Post{}, err
		}
		if err := json.Unmarshal(content, &post.Content); err != nil {
			return model.Post{}, fmt.Errorf("decode post %s: %w", post.ID, err)
		}
		return post, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan posts: %w", err)
	}
	return posts, nil
}
