package domain

import "fmt"

// EngagementKind distinguishes who initiated the engagement.
type EngagementKind string

const (
	// KindApplication is sent by a skill provider to a project owner.
	KindApplication EngagementKind = "application"
	// KindOffer is sent by a project owner to a skill provider.
	KindOffer EngagementKind = "offer"
)

func ParseEngagementKind(s string) (EngagementKind, error) {
	switch EngagementKind(s) {
	case KindApplication, KindOffer:
		return EngagementKind(s), nil
	}
	return "", fmt.Errorf("unknown engagement kind %q", s)
}

// EngagementStatus is the engagement lifecycle state. Pending is the only
// non-terminal state.
type EngagementStatus string

const (
	EngagementPending  EngagementStatus = "pending"
	EngagementAccepted EngagementStatus = "accepted"
	EngagementRejected EngagementStatus = "rejected"
)

func ParseEngagementStatus(s string) (EngagementStatus, error) {
	switch EngagementStatus(s) {
	case EngagementPending, EngagementAccepted, EngagementRejected:
		return EngagementStatus(s), nil
	}
	return "", fmt.Errorf("unknown engagement status %q", s)
}

// Terminal reports whether no further transitions are allowed.
func (s EngagementStatus) Terminal() bool {
	return s == EngagementAccepted || s == EngagementRejected
}

type ProjectStatus string

const (
	ProjectActive      ProjectStatus = "active"
	ProjectCompleted   ProjectStatus = "completed"
	ProjectDeactivated ProjectStatus = "deactivated"
)

func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch ProjectStatus(s) {
	case ProjectActive, ProjectCompleted, ProjectDeactivated:
		return ProjectStatus(s), nil
	}
	return "", fmt.Errorf("unknown project status %q", s)
}

func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectDeactivated
}

type ProfileStatus string

const (
	ProfileActive      ProfileStatus = "active"
	ProfileDeactivated ProfileStatus = "deactivated"
)

func ParseProfileStatus(s string) (ProfileStatus, error) {
	switch ProfileStatus(s) {
	case ProfileActive, ProfileDeactivated:
		return ProfileStatus(s), nil
	}
	return "", fmt.Errorf("unknown profile status %q", s)
}

// Engagement is a proposed working relationship (offer or application)
// between a project owner and a skill provider on a project.
type Engagement struct {
	ID         string           `json:"id"`
	Kind       EngagementKind   `json:"kind" enum:"application,offer"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	ProjectID  string           `json:"project_id"`
	Status     EngagementStatus `json:"status" enum:"pending,accepted,rejected"`
	Rate       float64          `json:"rate"`
	TimeFrame  int              `json:"time_frame"`
	CreatedAt  string           `json:"created_at" format:"date-time"`
	ResolvedAt *string          `json:"resolved_at,omitempty" format:"date-time"`
}

// ProviderID returns the skill-provider side of the engagement: applications
// are provider-initiated, offers are owner-initiated.
func (e Engagement) ProviderID() string {
	if e.Kind == KindApplication {
		return e.SenderID
	}
	return e.ReceiverID
}

// OwnerID returns the project-owner side of the engagement.
func (e Engagement) OwnerID() string {
	if e.Kind == KindApplication {
		return e.ReceiverID
	}
	return e.SenderID
}

type Project struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Location           string          `json:"location,omitempty"`
	Priority           string          `json:"priority,omitempty" enum:"low,medium,high"`
	Status             ProjectStatus   `json:"status" enum:"active,completed,deactivated"`
	SkillsRequired     []string        `json:"skills_required,omitempty"`
	StartDate          string          `json:"start_date" format:"date-time"`
	EndDate            string          `json:"end_date" format:"date-time"`
	ResourcesNeeded    int             `json:"resources_needed"`
	ResourcesAvailable int             `json:"resources_available"`
	Members            []ProjectMember `json:"members,omitempty"`
	CreatedAt          string          `json:"created_at" format:"date-time"`
	UpdatedAt          string          `json:"updated_at" format:"date-time"`
}

// Member returns the roster entry for the given provider, if present.
func (p Project) Member(memberID string) (ProjectMember, bool) {
	for _, m := range p.Members {
		if m.MemberID == memberID {
			return m, true
		}
	}
	return ProjectMember{}, false
}

// ProjectMember is a skill provider on a project roster. Name and email are a
// snapshot taken at acceptance time.
type ProjectMember struct {
	ProjectID         string  `json:"project_id"`
	MemberID          string  `json:"member_id"`
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	Email             string  `json:"email"`
	Rate              float64 `json:"rate"`
	TimeFrame         int     `json:"time_frame"`
	IsResigning       bool    `json:"is_resigning"`
	ResignationReason *string `json:"resignation_reason,omitempty"`
	JoinedAt          string  `json:"joined_at" format:"date-time"`
}

type SkillProvider struct {
	ID          string        `json:"id"`
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Email       string        `json:"email"`
	Location    string        `json:"location,omitempty"`
	Status      ProfileStatus `json:"status" enum:"active,deactivated"`
	Skills      []string      `json:"skills,omitempty"`
	RatingTotal float64       `json:"rating_total"`
	RatingCount int           `json:"rating_count"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

// Rating returns the provider's average score, zero when unrated.
func (p SkillProvider) Rating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return p.RatingTotal / float64(p.RatingCount)
}

type ProjectOwner struct {
	ID        string        `json:"id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email"`
	Location  string        `json:"location,omitempty"`
	Status    ProfileStatus `json:"status" enum:"active,deactivated"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

type Rating struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	ProviderID string  `json:"provider_id"`
	OwnerID    string  `json:"owner_id"`
	Score      float64 `json:"score"`
	Comment    string  `json:"comment,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	SentAt     string `json:"sent_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
