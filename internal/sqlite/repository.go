package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/photoposts/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	photo_paths TEXT NOT NULL,
	caption TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	source TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Repository implements domain.PostRepository and domain.CursorRepository
// using an embedded SQLite database.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the SQLite database at path,
// applies the schema, and returns a new Repository. The caller should call
// Close when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer connection keeps inserts serialized and id assignment
	// monotonic without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
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

// InsertPost stores a post and returns its new ID.
func (r *Repository) InsertPost(ctx context.Context, photoPaths []string, caption string) (int64, error) {
	encoded, err := json.Marshal(photoPaths)
	if err != nil {
		return 0, fmt.Errorf("encode photo paths: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (photo_paths, caption, created_at) VALUES (?, ?, ?)`,
		string(encoded), caption, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return res.LastInsertId()
}

// ListPosts returns all posts ordered by ID.
func (r *Repository) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, photo_paths, caption, created_at FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		var (
			p         domain.Post
			paths     string
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &paths, &p.Caption, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if err := json.Unmarshal([]byte(paths), &p.PhotoPaths); err != nil {
			return nil, fmt.Errorf("decode photo paths of post %d: %w", p.ID, err)
		}
		p.CreatedAt = time.UnixMilli(createdAt).UTC()
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// DeletePost removes a post by ID and reports whether it existed.
func (r *Repository) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
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
		`SELECT cursor_value FROM cursors WHERE source = ?`, source,
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
		VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		source, cursor, time.Now().UTC().UnixMilli(),
	)
	return err
}
