package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fieldops/fieldops/internal/rbac"
)

const (
	// QueueAudit is the asynq queue decision tasks are placed on.
	QueueAudit = "audit"
	// TaskDecision persists one authorization decision.
	TaskDecision = "audit:decision"
)

// DecisionPayload is the wire form of a recorded decision.
type DecisionPayload struct {
	ID       string    `json:"id"`
	ActorID  string    `json:"actor_id"`
	Role     string    `json:"role"`
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"`
	Rule     string    `json:"rule"`
	Required []string  `json:"required"`
	Missing  []string  `json:"missing,omitempty"`
	OwnerID  string    `json:"owner_id,omitempty"`
	At       time.Time `json:"at"`
}

// NewDecisionTask encodes d. The returned options carry a unique task id so a
// retried enqueue is not persisted twice.
func NewDecisionTask(d rbac.Decision, at time.Time) (*asynq.Task, []asynq.Option, error) {
	payload := DecisionPayload{
		ID:       uuid.NewString(),
		ActorID:  d.ActorID,
		Role:     string(d.Role),
		Allowed:  d.Allowed,
		Reason:   string(d.Reason),
		Rule:     d.Rule,
		Required: permissionStrings(d.Required),
		Missing:  permissionStrings(d.Missing),
		OwnerID:  d.OwnerID,
		At:       at,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	return asynq.NewTask(TaskDecision, data), []asynq.Option{asynq.TaskID(payload.ID), asynq.MaxRetry(5)}, nil
}

// DecodeDecisionTask turns a decision task back into an audit entry.
func DecodeDecisionTask(t *asynq.Task) (Entry, error) {
	var p DecisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return Entry{}, fmt.Errorf("audit: decode decision: %w", err)
	}
	return EntryFromPayload(p), nil
}

// EntryFromPayload maps a decision onto the audit_logs shape.
func EntryFromPayload(p DecisionPayload) Entry {
	action := ActionDecisionDenied
	if p.Allowed {
		action = ActionDecisionOverride
	}
	entityID := strings.Join(p.Required, ",")
	if entityID == "" {
		entityID = "-"
	}
	meta := map[string]any{
		"decision_id": p.ID,
		"role":        p.Role,
		"rule":        p.Rule,
	}
	if p.Reason != "" {
		meta["reason"] = p.Reason
	}
	if len(p.Missing) > 0 {
		meta["missing"] = p.Missing
	}
	if p.OwnerID != "" {
		meta["owner_id"] = p.OwnerID
	}
	return Entry{
		ActorID:    p.ActorID,
		Action:     action,
		Entity:     "permission",
		EntityID:   entityID,
		Meta:       meta,
		OccurredAt: p.At,
	}
}

func permissionStrings(perms []rbac.Permission) []string {
	if len(perms) == 0 {
		return nil
	}
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
