package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the proposals fts column with plainto_tsquery and ts_rank,
// using ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query, args := buildSearchSQL(q, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.OrganizationID, &r.Status, &r.CurrentPhase, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// buildSearchSQL assembles the FTS query. Nullable columns (status,
// current_phase) are coalesced so scanning never hits a NULL.
func buildSearchSQL(q Query, limit, offset int) (string, []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OrganizationID}
	argN := 3

	where := fmt.Sprintf("p.fts @@ %s AND p.organization_id = $2", tsQuery)
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND p.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.title,
			ts_headline('english', coalesce(p.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			p.organization_id, coalesce(p.status, ''), coalesce(p.current_phase, ''),
			COUNT(*) OVER() AS total
		FROM proposals p
		WHERE %s
		ORDER BY ts_rank(p.fts, %s) DESC
		LIMIT $%d OFFSET $%d`, tsQuery, where, tsQuery, argN, argN+1)
	args = append(args, limit, offset)
	return query, args
}

const loadRecordsSQL = `
	SELECT id, title, coalesce(agency, ''), coalesce(description, ''),
		organization_id, coalesce(status, ''), coalesce(current_phase, '')
	FROM proposals`

// LoadAllRecords reads every proposal from Postgres for bulk reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProposalRecord, error) {
	rows, err := p.db.QueryContext(ctx, loadRecordsSQL)
	if err != nil {
		return nil, fmt.Errorf("load proposals: %w", err)
	}
	defer rows.Close()

	var records []ProposalRecord
	for rows.Next() {
		var rec ProposalRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Agency, &rec.Description, &rec.OrganizationID, &rec.Status, &rec.CurrentPhase); err != nil {
			return nil, fmt.Errorf("scan proposal record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
