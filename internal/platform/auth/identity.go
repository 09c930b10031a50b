package auth

import (
	"context"
	"strings"
)

// Role is the caller's role as asserted by the identity service.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDoctor    Role = "doctor"
	RoleSecretary Role = "secretary"
	RolePatient   Role = "patient"
)

// roleAliases maps the role names issued by the user directory onto the
// canonical roles used here.
var roleAliases = map[string]Role{
	"admin":      RoleAdmin,
	"superuser":  RoleAdmin,
	"doctor":     RoleDoctor,
	"metge":      RoleDoctor,
	"physician":  RoleDoctor,
	"secretary":  RoleSecretary,
	"secretaria": RoleSecretary,
	"front-desk": RoleSecretary,
	"registrar":  RoleSecretary,
	"patient":    RolePatient,
	"pacient":    RolePatient,
}

// ParseRole normalizes a role claim. Unknown roles are reported with ok=false.
func ParseRole(s string) (Role, bool) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	return r, ok
}

// Identity is the caller as seen by the scheduling core.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
}

type contextKey string

const (
	identityKey   contextKey = "caller_identity"
	credentialKey contextKey = "caller_credential"
)

// WithIdentity stores the caller identity on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller identity set by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithCredential stores the raw bearer credential so it can be forwarded
// unchanged to downstream services.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

func CredentialFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(credentialKey).(string)
	return tok
}
