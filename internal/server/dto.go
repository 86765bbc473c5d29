package server

import (
	"encoding/json"

	"plinkage/internal/domain"
)

// Request payloads

type RegisterOwnerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" format:"email"`
	Location  string `json:"location,omitempty"`
}

type RegisterProviderRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email" format:"email"`
	Location  string   `json:"location,omitempty"`
	Skills    []string `json:"skills,omitempty"`
}

type CreateProjectRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Location        string   `json:"location,omitempty"`
	Priority        string   `json:"priority,omitempty" enum:"low,medium,high"`
	SkillsRequired  []string `json:"skills_required,omitempty"`
	StartDate       string   `json:"start_date" format:"date-time"`
	EndDate         string   `json:"end_date" format:"date-time"`
	ResourcesNeeded int      `json:"resources_needed" minimum:"1"`
}

type CreateEngagementRequest struct {
	Kind       string  `json:"kind" enum:"application,offer"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	ProjectID  string  `json:"project_id"`
	Rate       float64 `json:"rate" minimum:"0"`
	TimeFrame  int     `json:"time_frame" minimum:"1"`
}

type ProposeResignationRequest struct {
	Reason string `json:"reason"`
}

type ReconcileProjectRequest struct {
	Description       *string  `json:"description,omitempty"`
	Location          *string  `json:"location,omitempty"`
	Priority          *string  `json:"priority,omitempty" enum:"low,medium,high"`
	SkillsRequired    []string `json:"skills_required,omitempty"`
	StartDate         *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate           *string  `json:"end_date,omitempty" format:"date-time"`
	ResourcesNeeded   *int     `json:"resources_needed,omitempty" minimum:"1"`
	Status            *string  `json:"status,omitempty" enum:"active,completed,deactivated"`
	PendingRemovals   []string `json:"pending_removals,omitempty"`
	PendingRejections []string `json:"pending_rejections,omitempty"`
}

type RateMemberRequest struct {
	Score   float64 `json:"score"`
	Comment string  `json:"comment,omitempty"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

// Response payloads

type OwnerResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Location  string `json:"location,omitempty"`
	Status    string `json:"status" enum:"active,deactivated"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ProviderResponse struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Location  string   `json:"location,omitempty"`
	Status    string   `json:"status" enum:"active,deactivated"`
	Skills    []string `json:"skills"`
	Rating    float64  `json:"rating"`
	Ratings   int      `json:"ratings"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

type MemberResponse struct {
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

type ProjectResponse struct {
	ID                 string           `json:"id"`
	OwnerID            string           `json:"owner_id"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	Location           string           `json:"location,omitempty"`
	Priority           string           `json:"priority,omitempty"`
	Status             string           `json:"status" enum:"active,completed,deactivated"`
	SkillsRequired     []string         `json:"skills_required"`
	StartDate          string           `json:"start_date" format:"date-time"`
	EndDate            string           `json:"end_date" format:"date-time"`
	ResourcesNeeded    int              `json:"resources_needed"`
	ResourcesAvailable int              `json:"resources_available"`
	Members            []MemberResponse `json:"members"`
	CreatedAt          string           `json:"created_at" format:"date-time"`
	UpdatedAt          string           `json:"updated_at" format:"date-time"`
}

type EngagementResponse struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind" enum:"application,offer"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	ProjectID  string  `json:"project_id"`
	Status     string  `json:"status" enum:"pending,accepted,rejected"`
	Rate       float64 `json:"rate"`
	TimeFrame  int     `json:"time_frame"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	ResolvedAt *string `json:"resolved_at,omitempty" format:"date-time"`
}

type RatingResponse struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	ProviderID string  `json:"provider_id"`
	OwnerID    string  `json:"owner_id"`
	Score      float64 `json:"score"`
	Comment    string  `json:"comment,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type MessageResponse struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	SentAt     string `json:"sent_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEngagements struct {
	Items      []EngagementResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedMessages struct {
	Items      []MessageResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func ownerResponse(o domain.ProjectOwner) OwnerResponse {
	return OwnerResponse{
		ID:        o.ID,
		FirstName: o.FirstName,
		LastName:  o.LastName,
		Email:     o.Email,
		Location:  o.Location,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func providerResponse(p domain.SkillProvider) ProviderResponse {
	return ProviderResponse{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Location:  p.Location,
		Status:    string(p.Status),
		Skills:    nonNilSlice(p.Skills),
		Rating:    p.Rating(),
		Ratings:   p.RatingCount,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func memberResponse(m domain.ProjectMember) MemberResponse {
	return MemberResponse{
		MemberID:          m.MemberID,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		Email:             m.Email,
		Rate:              m.Rate,
		TimeFrame:         m.TimeFrame,
		IsResigning:       m.IsResigning,
		ResignationReason: m.ResignationReason,
		JoinedAt:          m.JoinedAt,
	}
}

func projectResponse(p domain.Project) ProjectResponse {
	members := make([]MemberResponse, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, memberResponse(m))
	}
	return ProjectResponse{
		ID:                 p.ID,
		OwnerID:            p.OwnerID,
		Name:               p.Name,
		Description:        p.Description,
		Location:           p.Location,
		Priority:           p.Priority,
		Status:             string(p.Status),
		SkillsRequired:     nonNilSlice(p.SkillsRequired),
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		ResourcesNeeded:    p.ResourcesNeeded,
		ResourcesAvailable: p.ResourcesAvailable,
		Members:            members,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func engagementResponse(e domain.Engagement) EngagementResponse {
	return EngagementResponse{
		ID:         e.ID,
		Kind:       string(e.Kind),
		SenderID:   e.SenderID,
		ReceiverID: e.ReceiverID,
		ProjectID:  e.ProjectID,
		Status:     string(e.Status),
		Rate:       e.Rate,
		TimeFrame:  e.TimeFrame,
		CreatedAt:  e.CreatedAt,
		ResolvedAt: e.ResolvedAt,
	}
}

func ratingResponse(rt domain.Rating) RatingResponse {
	return RatingResponse(rt)
}

func messageResponse(m domain.Message) MessageResponse {
	return MessageResponse(m)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
