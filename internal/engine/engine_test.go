package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"plinkage/internal/config"
	"plinkage/internal/db"
	"plinkage/internal/domain"
	"plinkage/internal/engine"
	"plinkage/internal/events"
	"plinkage/internal/migrate"
	"plinkage/internal/repo"
)

const (
	projectStart = "2024-02-01T00:00:00Z"
	projectEnd   = "2024-02-11T00:00:00Z" // 240 hours
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) owner(t *testing.T) domain.ProjectOwner {
	t.Helper()
	o, err := env.Engine.RegisterOwner(env.Ctx, "Olivia", "Moreau", "olivia@example.com", "Lyon")
	if err != nil {
		t.Fatalf("register owner: %v", err)
	}
	return o
}

func (env testEnv) provider(t *testing.T, email string) domain.SkillProvider {
	t.Helper()
	p, err := env.Engine.RegisterProvider(env.Ctx, "Pat", "Devos", email, "Lille", []string{"go", "sql"})
	if err != nil {
		t.Fatalf("register provider: %v", err)
	}
	return p
}

func (env testEnv) project(t *testing.T, ownerID string, needed int) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OwnerID:         ownerID,
		Name:            "rebuild billing",
		StartDate:       projectStart,
		EndDate:         projectEnd,
		ResourcesNeeded: needed,
		ActorID:         ownerID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (env testEnv) application(t *testing.T, providerID, ownerID, projectID string) domain.Engagement {
	t.Helper()
	eng, err := env.Engine.CreateEngagement(env.Ctx, engine.EngagementDraft{
		Kind:       domain.KindApplication,
		SenderID:   providerID,
		ReceiverID: ownerID,
		ProjectID:  projectID,
		Rate:       55,
		TimeFrame:  120,
	}, providerID)
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	return eng
}

func (env testEnv) admit(t *testing.T, providerID, ownerID, projectID string) domain.Engagement {
	t.Helper()
	app := env.application(t, providerID, ownerID, projectID)
	accepted, err := env.Engine.AcceptEngagement(env.Ctx, app.ID, ownerID)
	if err != nil {
		t.Fatalf("accept engagement: %v", err)
	}
	return accepted
}

func TestCreateProjectRejectsSameDayRange(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OwnerID:         o.ID,
		Name:            "one day wonder",
		StartDate:       "2024-02-01T01:00:00Z",
		EndDate:         "2024-02-01T23:00:00Z",
		ResourcesNeeded: 1,
		ActorID:         o.ID,
	})
	if !errors.Is(err, engine.ErrInvalidDateRange) {
		t.Fatalf("expected invalid date range, got %v", err)
	}
	// Crossing midnight counts even when the wall-clock span is short.
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OwnerID:         o.ID,
		Name:            "overnight",
		StartDate:       "2024-02-01T23:00:00Z",
		EndDate:         "2024-02-02T01:00:00Z",
		ResourcesNeeded: 1,
		ActorID:         o.ID,
	})
	if err != nil {
		t.Fatalf("expected overnight range accepted: %v", err)
	}
}

func TestCreateEngagementValidation(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p := env.provider(t, "p1@example.com")
	prj := env.project(t, o.ID, 2)

	draft := engine.EngagementDraft{
		Kind:       domain.KindApplication,
		SenderID:   p.ID,
		ReceiverID: o.ID,
		ProjectID:  prj.ID,
		Rate:       55,
		TimeFrame:  120,
	}

	bad := draft
	bad.Rate = -1
	if _, err := env.Engine.CreateEngagement(env.Ctx, bad, p.ID); err == nil {
		t.Fatal("expected negative rate rejected")
	}

	bad = draft
	bad.TimeFrame = 0
	if _, err := env.Engine.CreateEngagement(env.Ctx, bad, p.ID); err == nil {
		t.Fatal("expected zero time frame rejected")
	}

	bad = draft
	bad.ProjectID = "no-such-project"
	if _, err := env.Engine.CreateEngagement(env.Ctx, bad, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Project spans 240 hours; a longer commitment cannot fit.
	bad = draft
	bad.TimeFrame = 241
	if _, err := env.Engine.CreateEngagement(env.Ctx, bad, p.ID); !errors.Is(err, engine.ErrTimeframeExceedsDuration) {
		t.Fatalf("expected timeframe error, got %v", err)
	}

	if _, err := env.Engine.CreateEngagement(env.Ctx, draft, p.ID); err != nil {
		t.Fatalf("valid draft rejected: %v", err)
	}
}

func TestOfferChecksProjectState(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	p2 := env.provider(t, "p2@example.com")
	prj := env.project(t, o.ID, 1)
	env.admit(t, p1.ID, o.ID, prj.ID)

	offer := engine.EngagementDraft{
		Kind:       domain.KindOffer,
		SenderID:   o.ID,
		ReceiverID: p2.ID,
		ProjectID:  prj.ID,
		Rate:       60,
		TimeFrame:  80,
	}
	if _, err := env.Engine.CreateEngagement(env.Ctx, offer, o.ID); !errors.Is(err, engine.ErrProjectFull) {
		t.Fatalf("expected project full, got %v", err)
	}

	// The member check only guards offers; a provider may still apply to a
	// full project and wait for a slot.
	if _, err := env.Engine.CreateEngagement(env.Ctx, engine.EngagementDraft{
		Kind:       domain.KindApplication,
		SenderID:   p2.ID,
		ReceiverID: o.ID,
		ProjectID:  prj.ID,
		Rate:       60,
		TimeFrame:  80,
	}, p2.ID); err != nil {
		t.Fatalf("application to full project should queue: %v", err)
	}
}

func TestOfferToExistingMember(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	prj := env.project(t, o.ID, 2)
	env.admit(t, p1.ID, o.ID, prj.ID)

	_, err := env.Engine.CreateEngagement(env.Ctx, engine.EngagementDraft{
		Kind:       domain.KindOffer,
		SenderID:   o.ID,
		ReceiverID: p1.ID,
		ProjectID:  prj.ID,
		Rate:       60,
		TimeFrame:  80,
	}, o.ID)
	if !errors.Is(err, engine.ErrAlreadyEmployed) {
		t.Fatalf("expected already employed, got %v", err)
	}
}

func TestAcceptEngagementJoinsRoster(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	prj := env.project(t, o.ID, 2)

	app := env.application(t, p1.ID, o.ID, prj.ID)
	accepted, err := env.Engine.AcceptEngagement(env.Ctx, app.ID, o.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.EngagementAccepted || accepted.ResolvedAt == nil {
		t.Fatalf("unexpected engagement state: %+v", accepted)
	}

	got, err := env.Engine.Repo.GetProject(env.Ctx, prj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(got.Members))
	}
	m := got.Members[0]
	if m.MemberID != p1.ID || m.Rate != 55 || m.TimeFrame != 120 {
		t.Fatalf("member snapshot mismatch: %+v", m)
	}
	if got.ResourcesAvailable != got.ResourcesNeeded-len(got.Members) {
		t.Fatalf("capacity out of sync: available=%d needed=%d members=%d",
			got.ResourcesAvailable, got.ResourcesNeeded, len(got.Members))
	}

	if _, err := env.Engine.AcceptEngagement(env.Ctx, app.ID, o.ID); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
	if _, err := env.Engine.RejectEngagement(env.Ctx, app.ID, o.ID); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved on reject, got %v", err)
	}
}

func TestAcceptWhenFullRejectsEngagement(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	p2 := env.provider(t, "p2@example.com")
	prj := env.project(t, o.ID, 1)

	queued := env.application(t, p2.ID, o.ID, prj.ID)
	env.admit(t, p1.ID, o.ID, prj.ID)

	_, err := env.Engine.AcceptEngagement(env.Ctx, queued.ID, o.ID)
	if !errors.Is(err, engine.ErrProjectFull) {
		t.Fatalf("expected project full, got %v", err)
	}
	// The conflict resolution itself must stick.
	got, err := env.Engine.Repo.GetEngagement(env.Ctx, queued.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.EngagementRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
}

func TestAcceptDuplicateMembershipRejectsEngagement(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	prj := env.project(t, o.ID, 2)

	first := env.application(t, p1.ID, o.ID, prj.ID)
	second := env.application(t, p1.ID, o.ID, prj.ID)
	if _, err := env.Engine.AcceptEngagement(env.Ctx, first.ID, o.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.AcceptEngagement(env.Ctx, second.ID, o.ID)
	if !errors.Is(err, engine.ErrAlreadyEmployed) {
		t.Fatalf("expected already employed, got %v", err)
	}
	got, err := env.Engine.Repo.GetEngagement(env.Ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.EngagementRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
}

func TestAcceptInactiveProjectStaysPending(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	prj := env.project(t, o.ID, 1)
	app := env.application(t, p1.ID, o.ID, prj.ID)

	deactivated := domain.ProjectDeactivated
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{Status: &deactivated}, nil, nil, o.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := env.Engine.AcceptEngagement(env.Ctx, app.ID, o.ID)
	if !errors.Is(err, engine.ErrProjectNotActive) {
		t.Fatalf("expected project not active, got %v", err)
	}
	got, err := env.Engine.Repo.GetEngagement(env.Ctx, app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.EngagementPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestReconcileValidations(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	p2 := env.provider(t, "p2@example.com")
	prj := env.project(t, o.ID, 2)
	env.admit(t, p1.ID, o.ID, prj.ID)
	env.admit(t, p2.ID, o.ID, prj.ID)

	one := 1
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{ResourcesNeeded: &one}, nil, nil, o.ID); !errors.Is(err, engine.ErrInsufficientCapacityForMembers) {
		t.Fatalf("expected insufficient capacity, got %v", err)
	}

	badEnd := "2024-02-01T23:59:59Z"
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{EndDate: &badEnd}, nil, nil, o.ID); !errors.Is(err, engine.ErrInvalidDateRange) {
		t.Fatalf("expected invalid date range, got %v", err)
	}

	deactivated := domain.ProjectDeactivated
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{Status: &deactivated}, nil, nil, o.ID); !errors.Is(err, engine.ErrCannotDeactivateWithMembers) {
		t.Fatalf("expected deactivate blocked, got %v", err)
	}

	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{}, []string{"ghost"}, nil, o.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown member, got %v", err)
	}

	// Failed updates must not leak partial writes.
	got, err := env.Engine.Repo.GetProject(env.Ctx, prj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ProjectActive || len(got.Members) != 2 || got.ResourcesNeeded != 2 {
		t.Fatalf("project mutated by failed update: %+v", got)
	}

	empty := env.project(t, o.ID, 1)
	completed := domain.ProjectCompleted
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, empty.ID, engine.ProjectEdits{Status: &completed}, nil, nil, o.ID); !errors.Is(err, engine.ErrCannotCompleteWithoutMembers) {
		t.Fatalf("expected completion blocked, got %v", err)
	}
}

func TestReconcileTerminalProject(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	prj := env.project(t, o.ID, 1)
	deactivated := domain.ProjectDeactivated
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{Status: &deactivated}, nil, nil, o.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	desc := "late edit"
	_, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{Description: &desc}, nil, nil, o.ID)
	if !errors.Is(err, engine.ErrProjectNotActive) {
		t.Fatalf("expected terminal project frozen, got %v", err)
	}
}

func TestResignationFlow(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	p2 := env.provider(t, "p2@example.com")
	prj := env.project(t, o.ID, 2)
	env.admit(t, p1.ID, o.ID, prj.ID)
	env.admit(t, p2.ID, o.ID, prj.ID)

	if err := env.Engine.ProposeResignation(env.Ctx, prj.ID, p1.ID, "   ", p1.ID); !errors.Is(err, engine.ErrReasonRequired) {
		t.Fatalf("expected reason required, got %v", err)
	}
	if err := env.Engine.ProposeResignation(env.Ctx, prj.ID, p1.ID, strings.Repeat("x", 501), p1.ID); err == nil {
		t.Fatal("expected oversized reason rejected")
	}
	if err := env.Engine.ProposeResignation(env.Ctx, prj.ID, "outsider", "moving on", p1.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected member not found, got %v", err)
	}
	if err := env.Engine.ProposeResignation(env.Ctx, prj.ID, p1.ID, "moving on", p1.ID); err != nil {
		t.Fatalf("propose: %v", err)
	}

	got, err := env.Engine.Repo.GetProject(env.Ctx, prj.ID)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.Member(p1.ID)
	if !ok || !m.IsResigning || m.ResignationReason == nil || *m.ResignationReason != "moving on" {
		t.Fatalf("resignation not recorded: %+v", m)
	}

	// The owner must route every resigning member somewhere.
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{}, nil, nil, o.ID); !errors.Is(err, engine.ErrUnresolvedResignation) {
		t.Fatalf("expected unresolved resignation, got %v", err)
	}
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{}, []string{p1.ID}, []string{p1.ID}, o.ID); !errors.Is(err, engine.ErrUnresolvedResignation) {
		t.Fatalf("expected both-lists conflict, got %v", err)
	}

	// Denying keeps the member and clears the flag.
	updated, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{}, nil, []string{p1.ID}, o.ID)
	if err != nil {
		t.Fatalf("deny resignation: %v", err)
	}
	if m, ok := updated.Member(p1.ID); !ok || m.IsResigning {
		t.Fatalf("flag not cleared: %+v", m)
	}
	got, _ = env.Engine.Repo.GetProject(env.Ctx, prj.ID)
	if m, ok := got.Member(p1.ID); !ok || m.IsResigning || m.ResignationReason != nil {
		t.Fatalf("denial not durable: %+v", m)
	}

	// Approving removes the member and frees the slot.
	if err := env.Engine.ProposeResignation(env.Ctx, prj.ID, p1.ID, "really leaving", p1.ID); err != nil {
		t.Fatal(err)
	}
	updated, err = env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{}, []string{p1.ID}, nil, o.ID)
	if err != nil {
		t.Fatalf("approve resignation: %v", err)
	}
	if _, ok := updated.Member(p1.ID); ok {
		t.Fatal("member still on roster after removal")
	}
	if updated.ResourcesAvailable != 1 {
		t.Fatalf("slot not freed: %+v", updated)
	}
}

func TestCompletionAndRating(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	prj := env.project(t, o.ID, 1)
	env.admit(t, p1.ID, o.ID, prj.ID)

	if _, err := env.Engine.RateMember(env.Ctx, prj.ID, p1.ID, 4, "", o.ID); err == nil {
		t.Fatal("expected rating blocked before completion")
	}

	completed := domain.ProjectCompleted
	if _, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{Status: &completed}, nil, nil, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, prj.ID, "rating.due", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].EntityID != p1.ID {
		t.Fatalf("expected one rating.due for the member, got %+v", evts)
	}

	if _, err := env.Engine.RateMember(env.Ctx, prj.ID, p1.ID, 9, "", o.ID); err == nil {
		t.Fatal("expected score out of bounds rejected")
	}
	if _, err := env.Engine.RateMember(env.Ctx, prj.ID, "outsider", 4, "", o.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected non-member rejected, got %v", err)
	}

	rt, err := env.Engine.RateMember(env.Ctx, prj.ID, p1.ID, 4.5, "solid work", o.ID)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rt.Score != 4.5 || rt.OwnerID != o.ID {
		t.Fatalf("unexpected rating: %+v", rt)
	}
	provider, err := env.Engine.Repo.GetProvider(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if provider.RatingCount != 1 || provider.Rating() != 4.5 {
		t.Fatalf("aggregate mismatch: total=%v count=%d", provider.RatingTotal, provider.RatingCount)
	}

	if _, err := env.Engine.RateMember(env.Ctx, prj.ID, p1.ID, 3, "", o.ID); err == nil {
		t.Fatal("expected duplicate rating rejected")
	}
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")

	if _, err := env.Engine.SendMessage(env.Ctx, o.ID, p1.ID, "  "); err == nil {
		t.Fatal("expected empty body rejected")
	}
	m, err := env.Engine.SendMessage(env.Ctx, o.ID, p1.ID, "welcome aboard")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	inbox, err := env.Engine.Repo.ListMessages(env.Ctx, repo.MessageFilters{ReceiverID: p1.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 || inbox[0].ID != m.ID {
		t.Fatalf("message not listed: %+v", inbox)
	}
}

func TestReconcileRejectsZeroResourcesNeeded(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	prj := env.project(t, o.ID, 2)

	for _, needed := range []int{0, -5} {
		edit := needed
		_, err := env.Engine.ReconcileProjectUpdate(env.Ctx, prj.ID, engine.ProjectEdits{ResourcesNeeded: &edit}, nil, nil, o.ID)
		if err == nil || !strings.Contains(err.Error(), "at least 1") {
			t.Fatalf("resources_needed=%d should be rejected, got %v", needed, err)
		}
	}

	got, err := env.Engine.Repo.GetProject(env.Ctx, prj.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.ResourcesNeeded != 2 || got.ResourcesAvailable != 2 {
		t.Fatalf("capacity changed: needed=%d available=%d", got.ResourcesNeeded, got.ResourcesAvailable)
	}
}

func TestConcurrentAcceptLastSlot(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	p1 := env.provider(t, "p1@example.com")
	p2 := env.provider(t, "p2@example.com")
	prj := env.project(t, o.ID, 1)
	first := env.application(t, p1.ID, o.ID, prj.ID)
	second := env.application(t, p2.ID, o.ID, prj.ID)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.Engine.AcceptEngagement(env.Ctx, id, o.ID)
		}(i, id)
	}
	wg.Wait()

	var accepted, full int
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, engine.ErrProjectFull):
			full++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if accepted != 1 || full != 1 {
		t.Fatalf("want one acceptance and one capacity conflict, got accepted=%d full=%d", accepted, full)
	}

	got, err := env.Engine.Repo.GetProject(env.Ctx, prj.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(got.Members) != 1 || got.ResourcesAvailable != 0 {
		t.Fatalf("roster overrun: members=%d available=%d", len(got.Members), got.ResourcesAvailable)
	}
	for _, id := range []string{first.ID, second.ID} {
		eng, err := env.Engine.Repo.GetEngagement(env.Ctx, id)
		if err != nil {
			t.Fatalf("get engagement: %v", err)
		}
		if eng.Status == domain.EngagementPending {
			t.Fatalf("engagement %s left pending after the race", id)
		}
	}
}

func TestEventTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	o := env.owner(t)
	prj := env.project(t, o.ID, 1)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, prj.ID, events.TypeProjectCreated, "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("want one creation event, got %d", len(evts))
	}
	if want := "2024-01-15T12:00:00Z"; evts[0].TS != want {
		t.Fatalf("event ts = %s, want %s", evts[0].TS, want)
	}
}
