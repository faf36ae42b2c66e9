//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=../mocks/mock_document_store.go -package=mocks -mock_names=Store=MockDocumentStore
package document

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrUnknownUser = errors.New("user not found")
)

// Store persists documents and their share lists. Get and ListForUser
// return documents with Owner and SharedWith populated.
type Store interface {
	ListForUser(ctx context.Context, userID int) ([]Document, error)
	Get(ctx context.Context, id string) (*Document, error)
	Create(ctx context.Context, doc *Document) error
	Save(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
	AddShare(ctx context.Context, documentID string, userID int) error
	RemoveShare(ctx context.Context, documentID string, userID int) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectDocument = `
	SELECT d.id, d.title, d.content, d.created_at, d.updated_at, u.id, u.email
	FROM documents d
	JOIN users u ON u.id = d.owner_id`

func (r *Repository) ListForUser(ctx context.Context, userID int) ([]Document, error) {
	query := selectDocument + `
	WHERE d.owner_id = $1
	   OR d.id IN (SELECT document_id FROM document_shares WHERE user_id = $1)
	ORDER BY d.updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	shares, err := r.sharesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].SharedWith = lo.Map(shares[docs[i].ID], func(s share, _ int) UserRef { return s.user })
		if docs[i].SharedWith == nil {
			docs[i].SharedWith = []UserRef{}
		}
	}
	return docs, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	row := r.db.QueryRowContext(ctx, selectDocument+` WHERE d.id = $1`, id)
	if err := scanDocument(row, d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	shared, err := r.sharesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	d.SharedWith = shared
	return d, nil
}

func (r *Repository) Create(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (id, title, content, owner_id) VALUES ($1, $2, $3, $4)
	          RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, doc.ID, doc.Title, doc.Content, doc.Owner.ID).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (r *Repository) Save(ctx context.Context, doc *Document) error {
	query := `UPDATE documents SET title = $2, content = $3, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, doc.ID, doc.Title, doc.Content).Scan(&doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) AddShare(ctx context.Context, documentID string, userID int) error {
	query := `INSERT INTO document_shares (document_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, documentID, userID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
		return ErrUnknownUser
	}
	return err
}

func (r *Repository) RemoveShare(ctx context.Context, documentID string, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM document_shares WHERE document_id = $1 AND user_id = $2`, documentID, userID)
	return err
}

type share struct {
	documentID string
	user       UserRef
}

func (r *Repository) sharesOf(ctx context.Context, documentID string) ([]UserRef, error) {
	query := `SELECT s.document_id, u.id, u.email FROM document_shares s
	          JOIN users u ON u.id = s.user_id
	          WHERE s.document_id = $1 ORDER BY s.shared_at`
	shares, err := r.queryShares(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	return lo.Map(shares, func(s share, _ int) UserRef { return s.user }), nil
}

// sharesForUser loads the share lists of every document visible to userID
// in one round-trip, keyed by document id.
func (r *Repository) sharesForUser(ctx context.Context, userID int) (map[string][]share, error) {
	query := `SELECT s.document_id, u.id, u.email FROM document_shares s
	          JOIN users u ON u.id = s.user_id
	          WHERE s.document_id IN (
	              SELECT id FROM documents WHERE owner_id = $1
	              UNION
	              SELECT document_id FROM document_shares WHERE user_id = $1)
	          ORDER BY s.shared_at`
	shares, err := r.queryShares(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return lo.GroupBy(shares, func(s share) string { return s.documentID }), nil
}

func (r *Repository) queryShares(ctx context.Context, query string, arg any) ([]share, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shares := []share{}
	for rows.Next() {
		var s share
		if err := rows.Scan(&s.documentID, &s.user.ID, &s.user.Email); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, d *Document) error {
	return row.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt, &d.UpdatedAt, &d.Owner.ID, &d.Owner.Email)
}
