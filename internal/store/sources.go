package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/prempunmagar/trustcard/internal/logging"
)

// Source is one publisher in the reputation directory.
type Source struct {
	Domain      string `json:"domain"`
	Bias        string `json:"bias"`
	Reliability string `json:"reliability"`
	Description string `json:"description,omitempty"`
}

type SourceStats struct {
	Total         int            `json:"total"`
	ByReliability map[string]int `json:"by_reliability"`
	ByBias        map[string]int `json:"by_bias"`
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
}

// UpsertSource adds or replaces a directory entry.
func (s *Store) UpsertSource(ctx context.Context, src Source) error {
	return s.upsertSource(ctx, s.db, src)
}

func (s *Store) upsertSource(ctx context.Context, runner sq.BaseRunner, src Source) error {
	domain := normalizeDomain(src.Domain)
	if domain == "" {
		return errors.New("source: empty domain")
	}
	_, err := sq.Insert("sources").
		Columns("domain", "bias", "reliability", "description", "updated_at").
		Values(domain, src.Bias, src.Reliability, src.Description, s.nowNanos()).
		Suffix("ON CONFLICT(domain) DO UPDATE SET bias = excluded.bias, reliability = excluded.reliability, " +
			"description = excluded.description, updated_at = excluded.updated_at").
		RunWith(runner).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", domain, err)
	}
	return nil
}

// LookupSource finds a directory entry by registrable domain.
func (s *Store) LookupSource(ctx context.Context, domain string) (Source, bool, error) {
	var src Source
	err := sq.Select("domain", "bias", "reliability", "description").
		From("sources").
		Where(sq.Eq{"domain": normalizeDomain(domain)}).
		RunWith(s.db).QueryRowContext(ctx).
		Scan(&src.Domain, &src.Bias, &src.Reliability, &src.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, false, nil
	}
	if err != nil {
		return Source{}, false, fmt.Errorf("lookup source %s: %w", domain, err)
	}
	return src, true, nil
}

// SeedSources upserts every entry in one transaction and returns how many were written.
func (s *Store) SeedSources(ctx context.Context, sources []Source) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, src := range sources {
		if err := s.upsertSource(ctx, tx, src); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	s.logger.Info("seeded source directory", logging.Field{Key: "count", Value: len(sources)})
	return len(sources), nil
}

func (s *Store) SourceStats(ctx context.Context) (SourceStats, error) {
	st := SourceStats{ByReliability: map[string]int{}, ByBias: map[string]int{}}
	rows, err := sq.Select("bias", "reliability").From("sources").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return st, fmt.Errorf("source stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bias, rel string
		if err := rows.Scan(&bias, &rel); err != nil {
			return st, err
		}
		st.Total++
		st.ByBias[bias]++
		st.ByReliability[rel]++
	}
	return st, rows.Err()
}
