package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/pikflix/internal/types"
)

// likeEscaper escapes the LIKE metacharacters so a title matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// titleQuery builds the lookup for FindMovieByTitle. Matches are
// case-insensitive substrings, optionally restricted to a release year.
// Ties prefer an exact title, then popularity, then the lowest id.
func titleQuery(title string, year *int) (string, []any, error) {
	q := sq.Select("data", "last_updated").
		From("movies").
		Where(`title ILIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(title)+"%")

	if year != nil {
		q = q.Where("release_date BETWEEN ? AND ?",
			time.Date(*year, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(*year, time.December, 31, 0, 0, 0, 0, time.UTC),
		)
	}

	return q.OrderByClause("(lower(title) = lower(?::text)) DESC", title).
		OrderBy("popularity DESC NULLS LAST", "id ASC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// FindMovieByTitle returns the best catalog match for title, or nil if none.
func (db *DB) FindMovieByTitle(ctx context.Context, title string, year *int) (*types.Movie, error) {
	query, args, err := titleQuery(title, year)
	if err != nil {
		return nil, fmt.Errorf("failed to build title query: %w", err)
	}

	var data []byte
	var lastUpdated *time.Time
	err = db.pool.QueryRow(ctx, query, args...).Scan(&data, &lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movie %q: %w", title, err)
	}

	var m types.Movie
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal movie %q: %w", title, err)
	}
	m.LastUpdated = lastUpdated
	return &m, nil
}

// GetMovie returns a movie by id, or nil if not stored.
func (db *DB) GetMovie(ctx context.Context, id int) (*types.Movie, error) {
	var data []byte
	var lastUpdated *time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT data, last_updated FROM movies WHERE id = $1`, id,
	).Scan(&data, &lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie %d: %w", id, err)
	}

	var m types.Movie
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal movie %d: %w", id, err)
	}
	m.LastUpdated = lastUpdated
	return &m, nil
}

// UpsertMovie inserts a movie or replaces the stored row with the same id.
func (db *DB) UpsertMovie(ctx context.Context, m *types.Movie) error {
	stored := *m
	stored.LastUpdated = nil // kept in its own column
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal movie %d: %w", m.ID, err)
	}

	var releaseDate *time.Time
	if !m.ReleaseDate.IsZero() {
		t := m.ReleaseDate.Time
		releaseDate = &t
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO movies (id, title, release_date, popularity, data, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     release_date = EXCLUDED.release_date,
		     popularity = EXCLUDED.popularity,
		     data = EXCLUDED.data,
		     last_updated = EXCLUDED.last_updated`,
		m.ID, m.Title, releaseDate, m.Popularity, data, m.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert movie %d: %w", m.ID, err)
	}
	return nil
}
