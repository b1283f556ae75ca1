package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Portal selects which backend login endpoint authenticates a user.
type Portal string

const (
	PortalStaff   Portal = "staff"
	PortalOffice  Portal = "office"
	PortalVisitor Portal = "visitor"
)

func (p Portal) loginPath() (string, error) {
	switch p {
	case PortalStaff, "":
		return "/auth/login", nil
	case PortalOffice:
		return "/office-auth/login", nil
	case PortalVisitor:
		return "/visitor-auth/login", nil
	}
	return "", fmt.Errorf("unknown portal %q", p)
}

// Credentials are forwarded verbatim to the backend login endpoint.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginResult is the backend's answer to a successful login.
type LoginResult struct {
	Token  string `json:"token"`
	Role   string `json:"role"`
	Office string `json:"office,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Login authenticates against the portal's login endpoint.
func (c *Client) Login(ctx context.Context, portal Portal, creds Credentials) (LoginResult, error) {
	path, err := portal.loginPath()
	if err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, path, creds, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, fmt.Errorf("login response carried no token")
	}
	return out, nil
}

// VisitorAccount is a self-service visitor signup.
type VisitorAccount struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	ContactNumber string `json:"contactNumber"`
}

// RegisterVisitorAccount creates a visitor portal account.
func (c *Client) RegisterVisitorAccount(ctx context.Context, acct VisitorAccount) error {
	return c.do(ctx, http.MethodPost, "/visitor-auth/register", acct, nil)
}

// User is a staff account managed by admins.
type User struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Office   string `json:"office,omitempty"`
	Active   bool   `json:"active"`
	Password string `json:"password,omitempty"`
}

// ListUsers returns every staff account.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateUser adds a staff account.
func (c *Client) CreateUser(ctx context.Context, u User) (User, error) {
	var out User
	err := c.do(ctx, http.MethodPost, "/users", u, &out)
	return out, err
}

// UpdateUser edits a staff account. An empty password leaves it unchanged.
func (c *Client) UpdateUser(ctx context.Context, id string, u User) (User, error) {
	var out User
	err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), u, &out)
	return out, err
}

// DeleteUser removes a staff account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

// ToggleUserStatus flips a staff account between active and inactive.
func (c *Client) ToggleUserStatus(ctx context.Context, id string) (User, error) {
	var out User
	err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id)+"/toggle-status", nil, &out)
	return out, err
}
