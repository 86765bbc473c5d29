package plinkagesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal PLinkage HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID                 string   `json:"id"`
	OwnerID            string   `json:"owner_id"`
	Name               string   `json:"name"`
	Status             string   `json:"status"`
	SkillsRequired     []string `json:"skills_required"`
	StartDate          string   `json:"start_date"`
	EndDate            string   `json:"end_date"`
	ResourcesNeeded    int      `json:"resources_needed"`
	ResourcesAvailable int      `json:"resources_available"`
	Members            []Member `json:"members"`
}

// Member is a roster entry on a project.
type Member struct {
	MemberID    string  `json:"member_id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Rate        float64 `json:"rate"`
	TimeFrame   int     `json:"time_frame"`
	IsResigning bool    `json:"is_resigning"`
}

// Engagement is an offer or application between an owner and a provider.
type Engagement struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	ProjectID  string  `json:"project_id"`
	Status     string  `json:"status"`
	Rate       float64 `json:"rate"`
	TimeFrame  int     `json:"time_frame"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEngagements wraps engagement listings with cursors.
type PaginatedEngagements struct {
	Items      []Engagement `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// GetProject fetches a project with its roster.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateEngagement sends an offer or application.
func (c *Client) CreateEngagement(ctx context.Context, kind, senderID, receiverID, projectID string, rate float64, timeFrame int) (Engagement, error) {
	body := map[string]any{
		"kind":        kind,
		"sender_id":   senderID,
		"receiver_id": receiverID,
		"project_id":  projectID,
		"rate":        rate,
		"time_frame":  timeFrame,
	}
	var resp Engagement
	err := c.do(ctx, http.MethodPost, "v0/engagements", body, &resp)
	return resp, err
}

// AcceptEngagement resolves a pending engagement as accepted.
func (c *Client) AcceptEngagement(ctx context.Context, id string) (Engagement, error) {
	var resp Engagement
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/engagements/%s/accept", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// RejectEngagement resolves a pending engagement as rejected.
func (c *Client) RejectEngagement(ctx context.Context, id string) (Engagement, error) {
	var resp Engagement
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/engagements/%s/reject", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// EngagementsPage returns a filtered, paginated engagement listing.
func (c *Client) EngagementsPage(ctx context.Context, projectID, status string, limit int, cursor string) (PaginatedEngagements, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/engagements"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedEngagements
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ProposeResignation files a member's resignation on a project.
func (c *Client) ProposeResignation(ctx context.Context, projectID, memberID, reason string) error {
	body := map[string]any{"reason": reason}
	endpoint := fmt.Sprintf("v0/projects/%s/members/%s/resignation", url.PathEscape(projectID), url.PathEscape(memberID))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// Events returns recent events for a project.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, projectID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := fmt.Sprintf("v0/projects/%s/events", url.PathEscape(projectID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
