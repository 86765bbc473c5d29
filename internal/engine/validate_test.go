package engine_test

import (
	"errors"
	"testing"

	"plinkage/internal/domain"
	"plinkage/internal/engine"
)

func testProject() domain.Project {
	return domain.Project{
		ID:                 "prj-1",
		OwnerID:            "owner-1",
		Status:             domain.ProjectActive,
		StartDate:          "2024-02-01T00:00:00Z",
		EndDate:            "2024-02-06T00:00:00Z", // 120 hours
		ResourcesNeeded:    2,
		ResourcesAvailable: 2,
	}
}

func testDraft(kind domain.EngagementKind) engine.EngagementDraft {
	return engine.EngagementDraft{
		Kind:       kind,
		SenderID:   "sender-1",
		ReceiverID: "receiver-1",
		ProjectID:  "prj-1",
		Rate:       40,
		TimeFrame:  100,
	}
}

func TestValidateEngagementOrder(t *testing.T) {
	p := testProject()

	// A draft failing several checks reports the earliest one.
	d := testDraft(domain.KindOffer)
	d.Rate = -5
	d.TimeFrame = 0
	err := engine.ValidateEngagement(d, p)
	if err == nil || err.Error() != "rate must not be negative" {
		t.Fatalf("expected rate error first, got %v", err)
	}

	d = testDraft(domain.KindOffer)
	d.TimeFrame = 0
	err = engine.ValidateEngagement(d, p)
	if err == nil || err.Error() != "time frame must be a positive number of hours" {
		t.Fatalf("expected time frame error, got %v", err)
	}

	d = testDraft(domain.KindOffer)
	d.TimeFrame = 121
	if err := engine.ValidateEngagement(d, p); !errors.Is(err, engine.ErrTimeframeExceedsDuration) {
		t.Fatalf("expected timeframe error, got %v", err)
	}

	// Exactly the project duration fits.
	d.TimeFrame = 120
	if err := engine.ValidateEngagement(d, p); err != nil {
		t.Fatalf("boundary time frame rejected: %v", err)
	}
}

func TestValidateEngagementOfferGuards(t *testing.T) {
	full := testProject()
	full.ResourcesAvailable = 0
	full.Members = []domain.ProjectMember{{ProjectID: full.ID, MemberID: "receiver-1"}}

	// Capacity outranks membership when both would fail.
	if err := engine.ValidateEngagement(testDraft(domain.KindOffer), full); !errors.Is(err, engine.ErrProjectFull) {
		t.Fatalf("expected project full, got %v", err)
	}

	inactive := testProject()
	inactive.Status = domain.ProjectDeactivated
	if err := engine.ValidateEngagement(testDraft(domain.KindOffer), inactive); !errors.Is(err, engine.ErrProjectNotActive) {
		t.Fatalf("expected project not active, got %v", err)
	}

	employed := testProject()
	employed.ResourcesAvailable = 1
	employed.Members = []domain.ProjectMember{{ProjectID: employed.ID, MemberID: "receiver-1"}}
	if err := engine.ValidateEngagement(testDraft(domain.KindOffer), employed); !errors.Is(err, engine.ErrAlreadyEmployed) {
		t.Fatalf("expected already employed, got %v", err)
	}

	// Applications skip the offer-only guards entirely.
	if err := engine.ValidateEngagement(testDraft(domain.KindApplication), full); err != nil {
		t.Fatalf("application should not hit offer guards: %v", err)
	}
}
