package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"plinkage/internal/config"
	"plinkage/internal/domain"
	"plinkage/internal/events"
	"plinkage/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *projectLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newProjectLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) cfg() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

// eventWriter hands the engine's clock to the event writer so event
// timestamps and entity rows come from the same source.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

// lockProject serializes project mutations. Engines built without New (zero
// value) fall back to transaction-level isolation only.
func (e Engine) lockProject(projectID string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.acquire(projectID)
}

// RegisterOwner creates a project owner profile.
func (e Engine) RegisterOwner(ctx context.Context, firstName, lastName, email, location string) (domain.ProjectOwner, error) {
	if firstName == "" || lastName == "" || email == "" {
		return domain.ProjectOwner{}, errors.New("first name, last name and email required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	o := domain.ProjectOwner{
		ID:        uuid.New().String(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Location:  location,
		Status:    domain.ProfileActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertOwner(ctx, o); err != nil {
		return domain.ProjectOwner{}, err
	}
	return o, nil
}

// RegisterProvider creates a skill provider profile.
func (e Engine) RegisterProvider(ctx context.Context, firstName, lastName, email, location string, skills []string) (domain.SkillProvider, error) {
	if firstName == "" || lastName == "" || email == "" {
		return domain.SkillProvider{}, errors.New("first name, last name and email required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.SkillProvider{
		ID:        uuid.New().String(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Location:  location,
		Status:    domain.ProfileActive,
		Skills:    skills,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertProvider(ctx, p); err != nil {
		return domain.SkillProvider{}, err
	}
	return p, nil
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	OwnerID         string
	Name            string
	Description     string
	Location        string
	Priority        string
	SkillsRequired  []string
	StartDate       string
	EndDate         string
	ResourcesNeeded int
	ActorID         string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.ResourcesNeeded < 1 {
		return domain.Project{}, errors.New("resources needed must be at least 1")
	}
	ok, err := endAfterStartByDay(opts.StartDate, opts.EndDate)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, ErrInvalidDateRange
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:                 uuid.New().String(),
		OwnerID:            opts.OwnerID,
		Name:               opts.Name,
		Description:        opts.Description,
		Location:           opts.Location,
		Priority:           opts.Priority,
		Status:             domain.ProjectActive,
		SkillsRequired:     opts.SkillsRequired,
		StartDate:          opts.StartDate,
		EndDate:            opts.EndDate,
		ResourcesNeeded:    opts.ResourcesNeeded,
		ResourcesAvailable: opts.ResourcesNeeded,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, storeErr(err)
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetOwnerTx(ctx, tx, opts.OwnerID); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeProjectCreated, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "resources_needed": p.ResourcesNeeded}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, storeErr(err)
	}
	return p, nil
}

// CreateEngagement validates a draft against its project and persists it
// pending.
func (e Engine) CreateEngagement(ctx context.Context, d EngagementDraft, actorID string) (domain.Engagement, error) {
	cfg := e.cfg()
	if d.Rate < cfg.Engagement.MinRate {
		return domain.Engagement{}, fmt.Errorf("rate below configured minimum %v", cfg.Engagement.MinRate)
	}
	if max := cfg.Engagement.MaxTimeFrameDays; max > 0 && d.TimeFrame > max*24 {
		return domain.Engagement{}, ErrTimeframeExceedsDuration
	}
	p, err := e.Repo.GetProject(ctx, d.ProjectID)
	if err != nil {
		return domain.Engagement{}, err
	}
	if err := ValidateEngagement(d, p); err != nil {
		return domain.Engagement{}, err
	}
	eng := domain.Engagement{
		ID:         uuid.New().String(),
		Kind:       d.Kind,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		ProjectID:  d.ProjectID,
		Status:     domain.EngagementPending,
		Rate:       d.Rate,
		TimeFrame:  d.TimeFrame,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Engagement{}, storeErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEngagementTx(ctx, tx, eng); err != nil {
		return domain.Engagement{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeEngagementCreated, eng.ProjectID, "engagement", eng.ID, actorID, events.EventPayload{
		"kind":     string(eng.Kind),
		"sender":   eng.SenderID,
		"receiver": eng.ReceiverID,
	}); err != nil {
		return domain.Engagement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Engagement{}, storeErr(err)
	}
	return eng, nil
}

// AcceptEngagement resolves a pending engagement, admitting the provider to
// the project roster. Conflicts found at accept time follow the
// resolve-on-conflict policy: a full project or a duplicate membership
// rejects the engagement instead of leaving it pending; an inactive project
// leaves it pending so the caller may retry after reactivation.
func (e Engine) AcceptEngagement(ctx context.Context, id, actorID string) (domain.Engagement, error) {
	eng, err := e.Repo.GetEngagement(ctx, id)
	if err != nil {
		return eng, err
	}
	if eng.Status.Terminal() {
		return eng, ErrAlreadyResolved
	}
	unlock := e.lockProject(eng.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return eng, storeErr(err)
	}
	defer tx.Rollback()

	eng, err = e.Repo.GetEngagementTx(ctx, tx, id)
	if err != nil {
		return eng, err
	}
	if eng.Status.Terminal() {
		return eng, ErrAlreadyResolved
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, eng.ProjectID)
	if err != nil {
		return eng, err
	}
	// Capacity is checked strictly before duplicate membership, against the
	// roster count as of this transaction.
	members, err := e.Repo.CountMembersTx(ctx, tx, p.ID)
	if err != nil {
		return eng, err
	}
	if members >= p.ResourcesNeeded {
		return e.resolveConflict(ctx, tx, eng, actorID, "project_full", ErrProjectFull)
	}
	if p.Status != domain.ProjectActive {
		return eng, ErrProjectNotActive
	}
	providerID := eng.ProviderID()
	if _, ok := p.Member(providerID); ok {
		return e.resolveConflict(ctx, tx, eng, actorID, "already_employed", ErrAlreadyEmployed)
	}
	provider, err := e.Repo.GetProviderTx(ctx, tx, providerID)
	if err != nil {
		return eng, err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.UpdateEngagementStatusTx(ctx, tx, eng.ID, domain.EngagementAccepted, nowStr)
	if err != nil {
		return eng, err
	}
	if !ok {
		return eng, ErrAlreadyResolved
	}
	m := domain.ProjectMember{
		ProjectID: p.ID,
		MemberID:  provider.ID,
		FirstName: provider.FirstName,
		LastName:  provider.LastName,
		Email:     provider.Email,
		Rate:      eng.Rate,
		TimeFrame: eng.TimeFrame,
		JoinedAt:  nowStr,
	}
	if err := e.Repo.InsertMemberTx(ctx, tx, m); err != nil {
		return eng, err
	}
	p.Members = append(p.Members, m)
	p.ResourcesAvailable = p.ResourcesNeeded - len(p.Members)
	p.UpdatedAt = nowStr
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return eng, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeMemberJoined, p.ID, "member", provider.ID, actorID, events.EventPayload{"rate": eng.Rate, "time_frame": eng.TimeFrame}); err != nil {
		return eng, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeEngagementAccepted, p.ID, "engagement", eng.ID, actorID, events.EventPayload{"provider": provider.ID}); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, storeErr(err)
	}
	eng.Status = domain.EngagementAccepted
	eng.ResolvedAt = &nowStr
	return eng, nil
}

// resolveConflict rejects the engagement and commits, then surfaces the
// conflict to the caller. The rejection itself is the intended outcome.
func (e Engine) resolveConflict(ctx context.Context, tx *sql.Tx, eng domain.Engagement, actorID, reason string, kind error) (domain.Engagement, error) {
	nowStr := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.UpdateEngagementStatusTx(ctx, tx, eng.ID, domain.EngagementRejected, nowStr)
	if err != nil {
		return eng, err
	}
	if !ok {
		return eng, ErrAlreadyResolved
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeEngagementRejected, eng.ProjectID, "engagement", eng.ID, actorID, events.EventPayload{"reason": reason}); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, storeErr(err)
	}
	eng.Status = domain.EngagementRejected
	eng.ResolvedAt = &nowStr
	return eng, kind
}

// RejectEngagement resolves a pending engagement to rejected.
func (e Engine) RejectEngagement(ctx context.Context, id, actorID string) (domain.Engagement, error) {
	eng, err := e.Repo.GetEngagement(ctx, id)
	if err != nil {
		return eng, err
	}
	if eng.Status.Terminal() {
		return eng, ErrAlreadyResolved
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return eng, storeErr(err)
	}
	defer tx.Rollback()
	eng, err = e.Repo.GetEngagementTx(ctx, tx, id)
	if err != nil {
		return eng, err
	}
	if eng.Status.Terminal() {
		return eng, ErrAlreadyResolved
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.UpdateEngagementStatusTx(ctx, tx, eng.ID, domain.EngagementRejected, nowStr)
	if err != nil {
		return eng, err
	}
	if !ok {
		return eng, ErrAlreadyResolved
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeEngagementRejected, eng.ProjectID, "engagement", eng.ID, actorID, events.EventPayload{"reason": "rejected"}); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, storeErr(err)
	}
	eng.Status = domain.EngagementRejected
	eng.ResolvedAt = &nowStr
	return eng, nil
}

// ProposeResignation flags a member as resigning. The flag is durable right
// away; the owner resolves it in the next reconcile.
func (e Engine) ProposeResignation(ctx context.Context, projectID, memberID, reason, actorID string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if max := e.cfg().Resignation.MaxReasonLength; max > 0 && len(reason) > max {
		return fmt.Errorf("resignation reason exceeds %d characters", max)
	}
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if p.Status != domain.ProjectActive {
		return ErrProjectNotActive
	}
	if _, ok := p.Member(memberID); !ok {
		return repo.ErrNotFound
	}
	if err := e.Repo.SetMemberResignationTx(ctx, tx, projectID, memberID, true, &reason); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeResignationFiled, projectID, "member", memberID, actorID, events.EventPayload{"reason": reason}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	return nil
}

// ProjectEdits are the owner-editable fields of a reconcile. Nil pointers
// leave the current value untouched.
type ProjectEdits struct {
	Description     *string
	Location        *string
	Priority        *string
	SkillsRequired  []string
	StartDate       *string
	EndDate         *string
	ResourcesNeeded *int
	Status          *domain.ProjectStatus
}

// ReconcileProjectUpdate applies an owner's batch update atomically: field
// edits, staged member removals and denied resignations all validate
// together or nothing is written.
func (e Engine) ReconcileProjectUpdate(ctx context.Context, projectID string, edits ProjectEdits, pendingRemovals, pendingRejections []string, actorID string) (domain.Project, error) {
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, storeErr(err)
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if p.Status.Terminal() {
		return p, ErrProjectNotActive
	}

	working := p
	if edits.Description != nil {
		working.Description = *edits.Description
	}
	if edits.Location != nil {
		working.Location = *edits.Location
	}
	if edits.Priority != nil {
		working.Priority = *edits.Priority
	}
	if edits.SkillsRequired != nil {
		working.SkillsRequired = edits.SkillsRequired
	}
	if edits.StartDate != nil {
		working.StartDate = *edits.StartDate
	}
	if edits.EndDate != nil {
		working.EndDate = *edits.EndDate
	}
	if edits.ResourcesNeeded != nil {
		working.ResourcesNeeded = *edits.ResourcesNeeded
	}
	if edits.Status != nil {
		working.Status = *edits.Status
	}

	removals := map[string]bool{}
	for _, id := range pendingRemovals {
		if _, ok := p.Member(id); !ok {
			return p, repo.ErrNotFound
		}
		removals[id] = true
	}
	rejections := map[string]bool{}
	for _, id := range pendingRejections {
		if _, ok := p.Member(id); !ok {
			return p, repo.ErrNotFound
		}
		if removals[id] {
			return p, ErrUnresolvedResignation
		}
		rejections[id] = true
	}

	var remaining []domain.ProjectMember
	for _, m := range p.Members {
		if removals[m.MemberID] {
			continue
		}
		if m.IsResigning && !rejections[m.MemberID] {
			return p, ErrUnresolvedResignation
		}
		remaining = append(remaining, m)
	}

	if working.ResourcesNeeded < 1 {
		return p, errors.New("resources needed must be at least 1")
	}
	if working.ResourcesNeeded < len(remaining) {
		return p, ErrInsufficientCapacityForMembers
	}
	if working.Status == domain.ProjectCompleted && len(remaining) == 0 {
		return p, ErrCannotCompleteWithoutMembers
	}
	okDates, err := endAfterStartByDay(working.StartDate, working.EndDate)
	if err != nil {
		return p, err
	}
	if !okDates {
		return p, ErrInvalidDateRange
	}
	if working.Status == domain.ProjectDeactivated && len(remaining) > 0 {
		return p, ErrCannotDeactivateWithMembers
	}

	nowStr := e.now().UTC().Format(time.RFC3339)
	for id := range removals {
		if err := e.Repo.DeleteMemberTx(ctx, tx, projectID, id); err != nil {
			return p, err
		}
		if err := e.eventWriter().Append(ctx, tx, events.TypeMemberRemoved, projectID, "member", id, actorID, nil); err != nil {
			return p, err
		}
	}
	for id := range rejections {
		if err := e.Repo.SetMemberResignationTx(ctx, tx, projectID, id, false, nil); err != nil {
			return p, err
		}
		if err := e.eventWriter().Append(ctx, tx, events.TypeResignationDenied, projectID, "member", id, actorID, nil); err != nil {
			return p, err
		}
	}
	for i := range remaining {
		remaining[i].IsResigning = false
		remaining[i].ResignationReason = nil
	}
	working.Members = remaining
	working.ResourcesAvailable = working.ResourcesNeeded - len(remaining)
	working.UpdatedAt = nowStr
	if err := e.Repo.UpdateProjectTx(ctx, tx, working); err != nil {
		return p, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeProjectReconciled, projectID, "project", projectID, actorID, events.EventPayload{
		"removed":  len(removals),
		"denied":   len(rejections),
		"status":   string(working.Status),
		"capacity": working.ResourcesAvailable,
	}); err != nil {
		return p, err
	}
	if working.Status == domain.ProjectCompleted {
		if err := e.eventWriter().Append(ctx, tx, events.TypeProjectCompleted, projectID, "project", projectID, actorID, nil); err != nil {
			return p, err
		}
		for _, m := range remaining {
			if err := e.eventWriter().Append(ctx, tx, events.TypeRatingDue, projectID, "member", m.MemberID, actorID, nil); err != nil {
				return p, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return p, storeErr(err)
	}
	return working, nil
}

// RateMember records an owner's rating for a member of a completed project
// and folds it into the provider's aggregate.
func (e Engine) RateMember(ctx context.Context, projectID, memberID string, score float64, comment, actorID string) (domain.Rating, error) {
	cfg := e.cfg()
	if score < cfg.Rating.Min || score > cfg.Rating.Max {
		return domain.Rating{}, fmt.Errorf("score must be between %v and %v", cfg.Rating.Min, cfg.Rating.Max)
	}
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Rating{}, storeErr(err)
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Rating{}, err
	}
	if p.Status != domain.ProjectCompleted {
		return domain.Rating{}, errors.New("project must be completed before rating members")
	}
	if _, ok := p.Member(memberID); !ok {
		return domain.Rating{}, repo.ErrNotFound
	}
	exists, err := e.Repo.RatingExistsTx(ctx, tx, projectID, memberID)
	if err != nil {
		return domain.Rating{}, err
	}
	if exists {
		return domain.Rating{}, errors.New("member already rated for this project")
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	rt := domain.Rating{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		ProviderID: memberID,
		OwnerID:    p.OwnerID,
		Score:      score,
		Comment:    comment,
		CreatedAt:  nowStr,
	}
	if err := e.Repo.InsertRatingTx(ctx, tx, rt); err != nil {
		return domain.Rating{}, err
	}
	if err := e.Repo.AddProviderRatingTx(ctx, tx, memberID, score, nowStr); err != nil {
		return domain.Rating{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeRatingRecorded, projectID, "member", memberID, actorID, events.EventPayload{"score": score}); err != nil {
		return domain.Rating{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Rating{}, storeErr(err)
	}
	return rt, nil
}

// SendMessage delivers a direct message between two profiles.
func (e Engine) SendMessage(ctx context.Context, senderID, receiverID, body string) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, errors.New("body is required")
	}
	m := domain.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		SentAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, storeErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMessageTx(ctx, tx, m); err != nil {
		return domain.Message{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeMessageSent, "", "message", m.ID, senderID, nil); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, storeErr(err)
	}
	return m, nil
}
