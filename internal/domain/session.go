package domain

// Session carries the console operator's identity for the duration of one
// request. The role is supplied by the browser client and is advisory only:
// it routes UI affordances, not authorization. It is set once at the request
// boundary and read-only downstream.
type Session struct {
	Role     string `json:"role"`
	Operator string `json:"operator,omitempty"`
}

// Known console roles.
const (
	RoleViewer   = "viewer"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)
