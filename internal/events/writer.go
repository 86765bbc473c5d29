package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded by the engine.
const (
	TypeProjectCreated     = "project.created"
	TypeEngagementCreated  = "engagement.created"
	TypeEngagementAccepted = "engagement.accepted"
	TypeEngagementRejected = "engagement.rejected"
	TypeMemberJoined       = "member.joined"
	TypeMemberRemoved      = "member.removed"
	TypeResignationFiled   = "resignation.filed"
	TypeResignationDenied  = "resignation.denied"
	TypeProjectReconciled  = "project.reconciled"
	TypeProjectCompleted   = "project.completed"
	TypeRatingDue          = "rating.due"
	TypeRatingRecorded     = "rating.recorded"
	TypeMessageSent        = "message.sent"
)

// Writer appends audit events inside the caller's transaction so the
// event and the mutation it describes commit together.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) timestamp() string {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Append records one event. projectID and entityID may be empty for
// events not tied to a project (messages).
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if evtType == "" {
		return fmt.Errorf("event type required")
	}
	body := []byte("{}")
	if len(payload) > 0 {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		w.timestamp(), evtType, orNil(projectID), entityKind, orNil(entityID), actorID, string(body))
	return err
}

func orNil(v string) any {
	if v == "" {
		return nil
	}
	return v
}
