package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"apartments-bot/filter"
	"apartments-bot/models"
)

const listingColumns = `project_name, project_link, price, sq_meters, rooms_count, floor, plan, image_url, link, status, tag, created_at`

// ReplaceAll swaps the stored snapshot for listings in one transaction.
// Readers see either the previous snapshot or the new one, never a mix.
func (db *DB) ReplaceAll(ctx context.Context, listings []models.Listing) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM apartments`); err != nil {
		return fmt.Errorf("failed to clear apartments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO apartments (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	// One timestamp per generation; id keeps discovery order within it
	createdAt := time.Now().UTC().Truncate(time.Second)
	for i, l := range listings {
		tag := l.Tag
		if tag == "" {
			tag = "[]"
		}
		_, err := stmt.ExecContext(ctx,
			l.ProjectName, l.ProjectLink, l.Price, l.SqMeters, l.RoomsCount, l.Floor,
			l.Plan, l.ImageURL, l.Link, l.Status, tag, createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert apartment %d (%s/%s): %w", i, l.ProjectName, l.Plan, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.logger.Info("snapshot replaced", "listings", len(listings))
	return nil
}

// Query returns the stored listings matching f, ordered by s
func (db *DB) Query(ctx context.Context, f filter.Filter, s filter.Sort) ([]models.Listing, error) {
	where, args := whereClause(f)

	order := "created_at DESC, id ASC"
	if col := s.Column(); col != "" {
		order = col + " " + s.Direction() + ", id ASC"
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT `+listingColumns+`
		FROM apartments`+where+`
		ORDER BY `+order), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query apartments: %w", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		var l models.Listing
		err := rows.Scan(
			&l.ProjectName, &l.ProjectLink, &l.Price, &l.SqMeters, &l.RoomsCount, &l.Floor,
			&l.Plan, &l.ImageURL, &l.Link, &l.Status, &l.Tag, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan apartment: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Projects returns the distinct project names of listings matching f, sorted
func (db *DB) Projects(ctx context.Context, f filter.Filter) ([]string, error) {
	where, args := whereClause(f)
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT DISTINCT project_name
		FROM apartments`+where+`
		ORDER BY project_name`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Count returns the size of the stored snapshot
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM apartments`).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count apartments: %w", err)
	}
	return n, nil
}

func whereClause(f filter.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.RoomsCount != nil {
		args = append(args, *f.RoomsCount)
		conds = append(conds, fmt.Sprintf("rooms_count = $%d", len(args)))
	}
	if f.ProjectName != "" {
		args = append(args, f.ProjectName)
		conds = append(conds, fmt.Sprintf("project_name = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args
}
