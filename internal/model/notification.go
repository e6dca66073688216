package model

// Notification types carried in push data payloads.
const (
	NotificationTypeHelperAssigned = "helper_assigned"
	NotificationTypeNoHelper       = "no_helper_available"
	NotificationTypeJobCompleted   = "job_completed"
	NotificationTypeJobCancelled   = "job_cancelled"
)

// NotificationPrefRequest is the body of PUT /notifications/preferences.
type NotificationPrefRequest struct {
	Channel string `json:"channel" validate:"required"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

// Caller is the authenticated identity behind a request. It is resolved by
// middleware and passed explicitly into services.
type Caller struct {
	UserID string
	Role   string
}

// Roles carried in the JWT role claim.
const (
	RoleAuthenticated = "authenticated"
	RoleServiceRole   = "service_role"
)

// Authenticated reports whether the caller carries a user identity.
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// IsService reports whether the caller is a trusted backend process.
func (c Caller) IsService() bool {
	return c.Role == RoleServiceRole
}
