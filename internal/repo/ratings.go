package repo

import (
	"context"
	"database/sql"

	"plinkage/internal/domain"
)

const ratingCols = `id,project_id,provider_id,owner_id,score,comment,created_at`

func (r Repo) InsertRatingTx(ctx context.Context, tx *sql.Tx, rt domain.Rating) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ratings(`+ratingCols+`) VALUES (?,?,?,?,?,?,?)`,
		rt.ID, rt.ProjectID, rt.ProviderID, rt.OwnerID, rt.Score, rt.Comment, rt.CreatedAt)
	return err
}

// RatingExistsTx reports whether the owner already rated this provider for
// the project.
func (r Repo) RatingExistsTx(ctx context.Context, tx *sql.Tx, projectID, providerID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM ratings WHERE project_id=? AND provider_id=?`, projectID, providerID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListRatingsByProvider(ctx context.Context, providerID string) ([]domain.Rating, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ratingCols+` FROM ratings WHERE provider_id=? ORDER BY created_at DESC, id DESC`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rating
	for rows.Next() {
		var rt domain.Rating
		if err := rows.Scan(&rt.ID, &rt.ProjectID, &rt.ProviderID, &rt.OwnerID, &rt.Score, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, nil
}
