package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeUserRegistered       Type = "user.registered"
	TypeUserCreated          Type = "user.created"
	TypeUserUpdated          Type = "user.updated"
	TypeUserDeleted          Type = "user.deleted"
	TypeUserRolesSynced      Type = "user.roles_synced"
	TypeUserPermissionsSync  Type = "user.permissions_synced"
	TypePasswordChanged      Type = "user.password_changed"
	TypePasswordResetRequest Type = "password_reset.requested"
	TypePasswordResetDone    Type = "password_reset.completed"
	TypeLoginSucceeded       Type = "auth.login_succeeded"
	TypeLoginFailed          Type = "auth.login_failed"
	TypeSessionIssued        Type = "session.issued"
	TypeSessionRevoked       Type = "session.revoked"
	TypeSessionsRevokedAll   Type = "session.revoked_all"
	TypeRoleCreated          Type = "role.created"
	TypeRoleUpdated          Type = "role.updated"
	TypeRoleDeleted          Type = "role.deleted"
	TypePermissionCreated    Type = "permission.created"
	TypePermissionUpdated    Type = "permission.updated"
	TypePermissionDeleted    Type = "permission.deleted"
	TypeAccessDenied         Type = "authz.denied"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"` // Who triggered the event
}

func New(typ Type, actorID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
