package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soochol/actionplan/internal/domain"
)

// PostgresGraphStore persists the document/heading hierarchy with raw SQL
// over database/sql, the same style as the rest of the repo's Postgres
// access: no ORM, hand-written statements, JSONB for nested fields.
type PostgresGraphStore struct {
	pool *sql.DB
}

// NewPostgresGraphStore wraps an already-migrated connection pool.
func NewPostgresGraphStore(pool *sql.DB) *PostgresGraphStore {
	return &PostgresGraphStore{pool: pool}
}

func (p *PostgresGraphStore) PutDocument(ctx context.Context, doc domain.DocumentNode, headings []domain.HeadingNode) error {
	tx, err := p.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (name, source_path, type, is_rule)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET source_path=$2, type=$3, is_rule=$4
	`, doc.Name, doc.SourcePath, doc.Type, doc.IsRule); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM headings WHERE document_name = $1`, doc.Name); err != nil {
		return fmt.Errorf("clear prior headings: %w", err)
	}

	for _, h := range headings {
		embJSON, err := json.Marshal(h.SummaryEmbedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		childJSON, err := json.Marshal(h.ChildIDs)
		if err != nil {
			return fmt.Errorf("marshal child ids: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO headings (id, document_name, parent_id, title, level, start_line, end_line, raw_content, summary, summary_embedding, child_ids)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, h.ID, doc.Name, h.ParentID, h.Title, h.Level, h.StartLine, h.EndLine, h.RawContent, h.Summary, embJSON, childJSON); err != nil {
			return fmt.Errorf("insert heading %s: %w", h.ID, err)
		}
	}

	return tx.Commit()
}

func (p *PostgresGraphStore) scanHeading(row interface {
	Scan(dest ...any) error
}) (*domain.HeadingNode, error) {
	var h domain.HeadingNode
	var embJSON, childJSON []byte
	if err := row.Scan(&h.ID, &h.DocumentName, &h.ParentID, &h.Title, &h.Level, &h.StartLine, &h.EndLine, &h.RawContent, &h.Summary, &embJSON, &childJSON); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(embJSON, &h.SummaryEmbedding)
	_ = json.Unmarshal(childJSON, &h.ChildIDs)
	return &h, nil
}

const headingColumns = `id, document_name, parent_id, title, level, start_line, end_line, raw_content, summary, summary_embedding, child_ids`

func (p *PostgresGraphStore) Heading(ctx context.Context, id string) (*domain.HeadingNode, bool, error) {
	row := p.pool.QueryRowContext(ctx, `SELECT `+headingColumns+` FROM headings WHERE id = $1`, id)
	h, err := p.scanHeading(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query heading: %w", err)
	}
	return h, true, nil
}

func (p *PostgresGraphStore) Headings(ctx context.Context, ids []string) ([]domain.HeadingNode, error) {
	out := make([]domain.HeadingNode, 0, len(ids))
	for _, id := range ids {
		h, ok, err := p.Heading(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (p *PostgresGraphStore) Document(ctx context.Context, name string) (*domain.DocumentNode, bool, error) {
	var d domain.DocumentNode
	err := p.pool.QueryRowContext(ctx, `SELECT name, source_path, type, is_rule FROM documents WHERE name = $1`, name).
		Scan(&d.Name, &d.SourcePath, &d.Type, &d.IsRule)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query document: %w", err)
	}
	return &d, true, nil
}

func (p *PostgresGraphStore) AllHeadings(ctx context.Context) ([]domain.HeadingNode, error) {
	rows, err := p.pool.QueryContext(ctx, `SELECT `+headingColumns+` FROM headings`)
	if err != nil {
		return nil, fmt.Errorf("query all headings: %w", err)
	}
	defer rows.Close()

	var out []domain.HeadingNode
	for rows.Next() {
		h, err := p.scanHeading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heading: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (p *PostgresGraphStore) Children(ctx context.Context, id string) ([]domain.HeadingNode, error) {
	rows, err := p.pool.QueryContext(ctx, `SELECT `+headingColumns+` FROM headings WHERE parent_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var out []domain.HeadingNode
	for rows.Next() {
		h, err := p.scanHeading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child heading: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (p *PostgresGraphStore) Parent(ctx context.Context, id string) (*domain.HeadingNode, bool, error) {
	h, ok, err := p.Heading(ctx, id)
	if err != nil || !ok || h.ParentID == "" {
		return nil, false, err
	}
	return p.Heading(ctx, h.ParentID)
}

func (p *PostgresGraphStore) RuleDocuments(ctx context.Context) ([]string, error) {
	rows, err := p.pool.QueryContext(ctx, `SELECT name FROM documents WHERE is_rule = true`)
	if err != nil {
		return nil, fmt.Errorf("query rule documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (p *PostgresGraphStore) DeleteDocument(ctx context.Context, name string) error {
	_, err := p.pool.ExecContext(ctx, `DELETE FROM documents WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
