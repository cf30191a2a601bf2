package rbac

// Role represents a high-level permission grouping.
type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}
