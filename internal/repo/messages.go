package repo

import (
	"context"
	"database/sql"
	"strings"

	"plinkage/internal/domain"
)

func (r Repo) InsertMessageTx(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,sender_id,receiver_id,body,sent_at) VALUES (?,?,?,?,?)`,
		m.ID, m.SenderID, m.ReceiverID, m.Body, m.SentAt)
	return err
}

type MessageFilters struct {
	SenderID     string
	ReceiverID   string
	Limit        int
	CursorSentAt string
	CursorID     string
}

func (r Repo) ListMessages(ctx context.Context, f MessageFilters) ([]domain.Message, error) {
	var clauses []string
	var args []any
	if f.SenderID != "" {
		clauses = append(clauses, "sender_id=?")
		args = append(args, f.SenderID)
	}
	if f.ReceiverID != "" {
		clauses = append(clauses, "receiver_id=?")
		args = append(args, f.ReceiverID)
	}
	if f.CursorSentAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(sent_at < ? OR (sent_at = ? AND id < ?))")
		args = append(args, f.CursorSentAt, f.CursorSentAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,sender_id,receiver_id,body,sent_at FROM messages ` + where + ` ORDER BY sent_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}
