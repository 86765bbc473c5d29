package repo

import (
	"context"
	"database/sql"

	"plinkage/internal/domain"
)

const ownerCols = `id,first_name,last_name,email,location,status,created_at,updated_at`

func (r Repo) InsertOwner(ctx context.Context, o domain.ProjectOwner) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO project_owners(`+ownerCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		o.ID, o.FirstName, o.LastName, o.Email, o.Location, o.Status, o.CreatedAt, o.UpdatedAt)
	return err
}

func scanOwner(row interface{ Scan(dest ...any) error }) (domain.ProjectOwner, error) {
	var o domain.ProjectOwner
	err := row.Scan(&o.ID, &o.FirstName, &o.LastName, &o.Email, &o.Location, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) GetOwner(ctx context.Context, id string) (domain.ProjectOwner, error) {
	return scanOwner(r.DB.QueryRowContext(ctx, `SELECT `+ownerCols+` FROM project_owners WHERE id=?`, id))
}

func (r Repo) GetOwnerTx(ctx context.Context, tx *sql.Tx, id string) (domain.ProjectOwner, error) {
	return scanOwner(tx.QueryRowContext(ctx, `SELECT `+ownerCols+` FROM project_owners WHERE id=?`, id))
}

func (r Repo) ListOwners(ctx context.Context) ([]domain.ProjectOwner, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ownerCols+` FROM project_owners ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectOwner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) UpdateOwnerStatus(ctx context.Context, id string, status domain.ProfileStatus, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE project_owners SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const providerCols = `id,first_name,last_name,email,location,status,skills_json,rating_total,rating_count,created_at,updated_at`

func (r Repo) InsertProvider(ctx context.Context, p domain.SkillProvider) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO skill_providers(`+providerCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Location, p.Status, marshalStrings(p.Skills), p.RatingTotal, p.RatingCount, p.CreatedAt, p.UpdatedAt)
	return err
}

func scanProvider(row interface{ Scan(dest ...any) error }) (domain.SkillProvider, error) {
	var p domain.SkillProvider
	var skills string
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Location, &p.Status, &skills, &p.RatingTotal, &p.RatingCount, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Skills = unmarshalStrings(skills)
	return p, nil
}

func (r Repo) GetProvider(ctx context.Context, id string) (domain.SkillProvider, error) {
	return scanProvider(r.DB.QueryRowContext(ctx, `SELECT `+providerCols+` FROM skill_providers WHERE id=?`, id))
}

func (r Repo) GetProviderTx(ctx context.Context, tx *sql.Tx, id string) (domain.SkillProvider, error) {
	return scanProvider(tx.QueryRowContext(ctx, `SELECT `+providerCols+` FROM skill_providers WHERE id=?`, id))
}

func (r Repo) ListProviders(ctx context.Context) ([]domain.SkillProvider, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+providerCols+` FROM skill_providers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SkillProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpdateProviderStatus(ctx context.Context, id string, status domain.ProfileStatus, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE skill_providers SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddProviderRatingTx folds a new score into the provider's running aggregate.
func (r Repo) AddProviderRatingTx(ctx context.Context, tx *sql.Tx, id string, score float64, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE skill_providers SET rating_total=rating_total+?, rating_count=rating_count+1, updated_at=? WHERE id=?`,
		score, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
