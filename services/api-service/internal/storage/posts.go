package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/jackc/pgx/v5"
)

const postColumns = `id, author_id, title, body, crop_type, tags, published, created_at, updated_at`

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.CropType, &p.Tags, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return scanPost(s.pool.QueryRow(ctx, `
		INSERT INTO posts (id, author_id, title, body, crop_type, tags, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+postColumns,
		p.ID, p.AuthorID, p.Title, p.Body, p.CropType, p.Tags, p.Published))
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	if err := checkID(id); err != nil {
		return model.Post{}, err
	}
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return model.Post{}, notFound(err)
	}
	return p, nil
}

func (s *Store) SetPostPublished(ctx context.Context, id string, published bool) (model.Post, error) {
	if err := checkID(id); err != nil {
		return model.Post{}, err
	}
	p, err := scanPost(s.pool.QueryRow(ctx, `
		UPDATE posts SET published = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+postColumns, id, published))
	if err != nil {
		return model.Post{}, notFound(err)
	}
	return p, nil
}

func (s *Store) ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.PublishedOnly {
		where = append(where, "published")
	}
	if f.CropType != "" {
		where = append(where, "crop_type = "+arg(f.CropType))
	}
	if f.AuthorID != "" {
		where = append(where, "author_id = "+arg(f.AuthorID))
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR body ILIKE %s)", p, p))
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
