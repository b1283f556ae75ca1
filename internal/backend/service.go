package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"visitordesk/internal/visitor"
)

// ServiceAccount is the desk's own identity at the backend, used by the
// pollers, the overdue scan, the wizard and the worker. When a call comes
// back unauthorized it logs in again and retries that call once.
type ServiceAccount struct {
	client *Client
	creds  Credentials

	mu    sync.Mutex
	token string
}

// NewServiceAccount starts from token, which may be empty. Without a
// username or email in creds the token is never refreshed.
func NewServiceAccount(c *Client, token string, creds Credentials) *ServiceAccount {
	return &ServiceAccount{client: c, creds: creds, token: token}
}

func (s *ServiceAccount) canLogin() bool {
	return s.creds.Username != "" || s.creds.Email != ""
}

func (s *ServiceAccount) current() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.WithToken(s.token)
}

// Token returns the bearer token currently in use.
func (s *ServiceAccount) Token() string { return s.current().Token() }

// Login fetches a fresh token with the account's credentials.
func (s *ServiceAccount) Login(ctx context.Context) error {
	return s.relogin(ctx, s.Token())
}

// relogin replaces stale. A caller that lost the race to another refresh
// keeps the newer token instead of logging in twice.
func (s *ServiceAccount) relogin(ctx context.Context, stale string) error {
	if !s.canLogin() {
		return errors.New("service account has no credentials")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != stale {
		return nil
	}
	res, err := s.client.Login(ctx, PortalStaff, s.creds)
	if err != nil {
		return err
	}
	s.token = res.Token
	return nil
}

func withRelogin[T any](ctx context.Context, s *ServiceAccount, fn func(*Client) (T, error)) (T, error) {
	c := s.current()
	out, err := fn(c)
	if !errors.Is(err, ErrUnauthorized) || !s.canLogin() {
		return out, err
	}
	if lerr := s.relogin(ctx, c.Token()); lerr != nil {
		return out, fmt.Errorf("%w (re-login failed: %v)", err, lerr)
	}
	return fn(s.current())
}

func (s *ServiceAccount) ListVisitors(ctx context.Context) ([]visitor.Record, error) {
	return withRelogin(ctx, s, func(c *Client) ([]visitor.Record, error) { return c.ListVisitors(ctx) })
}

func (s *ServiceAccount) CreateVisitor(ctx context.Context, rec visitor.Record) (visitor.Record, error) {
	return withRelogin(ctx, s, func(c *Client) (visitor.Record, error) { return c.CreateVisitor(ctx, rec) })
}

func (s *ServiceAccount) CreateAppointment(ctx context.Context, rec visitor.Record) (visitor.Record, error) {
	return withRelogin(ctx, s, func(c *Client) (visitor.Record, error) { return c.CreateAppointment(ctx, rec) })
}

func (s *ServiceAccount) SendOverdueEmail(ctx context.Context, id string) error {
	_, err := withRelogin(ctx, s, func(c *Client) (struct{}, error) { return struct{}{}, c.SendOverdueEmail(ctx, id) })
	return err
}

func (s *ServiceAccount) Notify(ctx context.Context, id, message string) error {
	_, err := withRelogin(ctx, s, func(c *Client) (struct{}, error) { return struct{}{}, c.Notify(ctx, id, message) })
	return err
}
