package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"plinkage/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func marshalStrings(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(vals)
	return string(data)
}

func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	return vals
}

const projectCols = `id,owner_id,name,description,location,priority,status,skills_json,start_date,end_date,resources_needed,resources_available,created_at,updated_at`

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.OwnerID, p.Name, p.Description, p.Location, p.Priority, p.Status, marshalStrings(p.SkillsRequired),
		p.StartDate, p.EndDate, p.ResourcesNeeded, p.ResourcesAvailable, p.CreatedAt, p.UpdatedAt)
	return err
}

type projectScanner interface {
	Scan(dest ...any) error
}

func scanProject(row projectScanner) (domain.Project, error) {
	var p domain.Project
	var skills string
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Location, &p.Priority, &p.Status, &skills,
		&p.StartDate, &p.EndDate, &p.ResourcesNeeded, &p.ResourcesAvailable, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.SkillsRequired = unmarshalStrings(skills)
	return p, nil
}

// GetProject returns the project with its member roster.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	members, err := r.listMembers(ctx, r.DB.QueryContext, id)
	if err != nil {
		return p, err
	}
	p.Members = members
	return p, nil
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(tx.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	members, err := r.listMembers(ctx, tx.QueryContext, id)
	if err != nil {
		return p, err
	}
	p.Members = members
	return p, nil
}

type ProjectFilters struct {
	OwnerID         string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectCols + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// ProjectsByMember returns projects where the provider is on the roster.
// Membership is derived from project_members at query time.
func (r Repo) ProjectsByMember(ctx context.Context, memberID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+prefixCols("p", projectCols)+` FROM projects p
JOIN project_members m ON m.project_id=p.id WHERE m.member_id=? ORDER BY p.created_at DESC, p.id DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ",")
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, location=?, priority=?, status=?, skills_json=?, start_date=?, end_date=?, resources_needed=?, resources_available=?, updated_at=? WHERE id=?`,
		p.Name, p.Description, p.Location, p.Priority, p.Status, marshalStrings(p.SkillsRequired),
		p.StartDate, p.EndDate, p.ResourcesNeeded, p.ResourcesAvailable, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const memberCols = `project_id,member_id,first_name,last_name,email,rate,time_frame,is_resigning,resignation_reason,joined_at`

type queryFn func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listMembers(ctx context.Context, query queryFn, projectID string) ([]domain.ProjectMember, error) {
	rows, err := query(ctx, `SELECT `+memberCols+` FROM project_members WHERE project_id=? ORDER BY joined_at ASC, member_id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		var reason sql.NullString
		if err := rows.Scan(&m.ProjectID, &m.MemberID, &m.FirstName, &m.LastName, &m.Email, &m.Rate, &m.TimeFrame, &m.IsResigning, &reason, &m.JoinedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			m.ResignationReason = &reason.String
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) InsertMemberTx(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_members(`+memberCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ProjectID, m.MemberID, m.FirstName, m.LastName, m.Email, m.Rate, m.TimeFrame, m.IsResigning, nullableStringPtr(m.ResignationReason), m.JoinedAt)
	return err
}

func (r Repo) DeleteMemberTx(ctx context.Context, tx *sql.Tx, projectID, memberID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND member_id=?`, projectID, memberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMemberResignationTx flips the resignation flag and stores or clears the reason.
func (r Repo) SetMemberResignationTx(ctx context.Context, tx *sql.Tx, projectID, memberID string, resigning bool, reason *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE project_members SET is_resigning=?, resignation_reason=? WHERE project_id=? AND member_id=?`,
		resigning, nullableStringPtr(reason), projectID, memberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountMembersTx(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projID, entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projID, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projID.Valid {
			e.ProjectID = projID.String
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projID, entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projID, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projID.Valid {
			e.ProjectID = projID.String
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// LatestEventID returns the most recent event ID, optionally scoped to a project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	row := r.DB.QueryRowContext(ctx, query, args...)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
