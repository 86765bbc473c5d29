package repo

import (
	"context"
	"database/sql"
	"strings"

	"plinkage/internal/domain"
)

const engagementCols = `id,kind,sender_id,receiver_id,project_id,status,rate,time_frame,created_at,resolved_at`

func (r Repo) InsertEngagementTx(ctx context.Context, tx *sql.Tx, e domain.Engagement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO engagements(`+engagementCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Kind, e.SenderID, e.ReceiverID, e.ProjectID, e.Status, e.Rate, e.TimeFrame, e.CreatedAt, nullableStringPtr(e.ResolvedAt))
	return err
}

type engagementScanner interface {
	Scan(dest ...any) error
}

func scanEngagement(row engagementScanner) (domain.Engagement, error) {
	var e domain.Engagement
	var resolvedAt sql.NullString
	err := row.Scan(&e.ID, &e.Kind, &e.SenderID, &e.ReceiverID, &e.ProjectID, &e.Status, &e.Rate, &e.TimeFrame, &e.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if resolvedAt.Valid {
		e.ResolvedAt = &resolvedAt.String
	}
	return e, nil
}

func (r Repo) GetEngagement(ctx context.Context, id string) (domain.Engagement, error) {
	return scanEngagement(r.DB.QueryRowContext(ctx, `SELECT `+engagementCols+` FROM engagements WHERE id=?`, id))
}

func (r Repo) GetEngagementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Engagement, error) {
	return scanEngagement(tx.QueryRowContext(ctx, `SELECT `+engagementCols+` FROM engagements WHERE id=?`, id))
}

// UpdateEngagementStatusTx moves a pending engagement into a terminal state.
// The status guard in the WHERE clause makes resolution first-write-wins.
func (r Repo) UpdateEngagementStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.EngagementStatus, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE engagements SET status=?, resolved_at=? WHERE id=? AND status=?`,
		status, resolvedAt, id, domain.EngagementPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type EngagementFilters struct {
	ProjectID       string
	Kind            string
	Status          string
	SenderID        string
	ReceiverID      string
	// PartyID matches either side of the engagement.
	PartyID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListEngagements(ctx context.Context, f EngagementFilters) ([]domain.Engagement, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.SenderID != "" {
		clauses = append(clauses, "sender_id=?")
		args = append(args, f.SenderID)
	}
	if f.ReceiverID != "" {
		clauses = append(clauses, "receiver_id=?")
		args = append(args, f.ReceiverID)
	}
	if f.PartyID != "" {
		clauses = append(clauses, "(sender_id=? OR receiver_id=?)")
		args = append(args, f.PartyID, f.PartyID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + engagementCols + ` FROM engagements ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}
