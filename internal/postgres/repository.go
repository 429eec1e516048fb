package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/photoposts/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	photo_paths TEXT NOT NULL,
	caption TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cursors (
	source TEXT PRIMARY KEY,
	cursor_value BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// Repository implements domain.PostRepository and domain.CursorRepository
// using PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, ensures the schema exists, and returns a new Repository. The
// caller should call Close when the repository is no longer needed.
func NewRepository(databaseURL string) (*Repository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// InsertPost inserts a new post and returns its ID.
func (r *Repository) InsertPost(ctx context.Context, photoPaths []string, caption string) (int64, error) {
	encoded, err := json.Marshal(photoPaths)
	if err != nil {
		return 0, fmt.Errorf("encode photo paths: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO posts (photo_paths, caption, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		string(encoded),
		caption,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

// ListPosts retrieves all posts ordered by ID.
func (r *Repository) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, photo_paths, caption, created_at
		FROM posts
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		var (
			p     domain.Post
			paths string
		)
		err := rows.Scan(
			&p.ID,
			&paths,
			&p.Caption,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if err := json.Unmarshal([]byte(paths), &p.PhotoPaths); err != nil {
			return nil, fmt.Errorf("decode photo paths of post %d: %w", p.ID, err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// DeletePost removes a post by ID and reports whether a row was removed.
func (r *Repository) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCursor retrieves the saved update cursor for a source.
func (r *Repository) GetCursor(ctx context.Context, source string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE source = $1`, source,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the update cursor for a source.
func (r *Repository) UpdateCursor(ctx context.Context, source string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (source, cursor_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (source) DO UPDATE SET cursor_value = $2, updated_at = $3`,
		source, cursor, time.Now().UTC(),
	)
	return err
}
