package auth

import "strings"

// Role is a console role. Each role owns one page.
type Role string

const (
	RoleGuard  Role = "guard"
	RoleOffice Role = "office"
	RoleAdmin  Role = "admin"
)

// NormalizeRole maps the backend's role labels ("Guard", "Office Staff",
// "Admin") onto Role. Unknown labels yield "".
func NormalizeRole(label string) Role {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "guard" || l == "security" || strings.HasPrefix(l, "guard"):
		return RoleGuard
	case l == "admin" || l == "administrator" || strings.HasPrefix(l, "admin"):
		return RoleAdmin
	case l == "office" || strings.HasPrefix(l, "office"), l == "staff":
		return RoleOffice
	}
	return ""
}
