package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"visitordesk/internal/visitor"
)

// ListVisitors fetches the full visitor collection.
func (c *Client) ListVisitors(ctx context.Context) ([]visitor.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/visitors", nil, &raw); err != nil {
		return nil, err
	}
	return visitor.DecodeList(raw)
}

// CreateVisitor registers a new visitor and returns the stored record.
func (c *Client) CreateVisitor(ctx context.Context, rec visitor.Record) (visitor.Record, error) {
	rec.Kind = visitor.KindVisitor
	body, err := visitor.Encode(rec)
	if err != nil {
		return visitor.Record{}, err
	}
	return c.recordCall(ctx, http.MethodPost, "/visitors", json.RawMessage(body))
}

// UpdateVisitor applies a generic field patch.
func (c *Client) UpdateVisitor(ctx context.Context, id string, patch map[string]any) (visitor.Record, error) {
	return c.recordCall(ctx, http.MethodPut, visitorPath(id, ""), patch)
}

// DeleteVisitor removes a visitor.
func (c *Client) DeleteVisitor(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, visitorPath(id, ""), nil, nil)
}

// TimeIn records the visitor's arrival.
func (c *Client) TimeIn(ctx context.Context, id string) (visitor.Record, error) {
	return c.recordCall(ctx, http.MethodPut, visitorPath(id, "time-in"), nil)
}

// TimeOut records the visitor's departure.
func (c *Client) TimeOut(ctx context.Context, id string) (visitor.Record, error) {
	return c.recordCall(ctx, http.MethodPut, visitorPath(id, "time-out"), nil)
}

// StartProcessing marks the start of office handling.
func (c *Client) StartProcessing(ctx context.Context, id string) (visitor.Record, error) {
	return c.recordCall(ctx, http.MethodPut, visitorPath(id, "start-processing"), nil)
}

// OfficeProcessed marks office handling as done.
func (c *Client) OfficeProcessed(ctx context.Context, id string) (visitor.Record, error) {
	return c.recordCall(ctx, http.MethodPut, visitorPath(id, "office-processed"), nil)
}

// AcceptDecline records the office decision.
func (c *Client) AcceptDecline(ctx context.Context, id string, accepted bool) (visitor.Record, error) {
	return c.recordCall(ctx, http.MethodPut, visitorPath(id, "accept-decline"), map[string]bool{"accepted": accepted})
}

// SendOverdueEmail asks the backend to email an overdue notice.
func (c *Client) SendOverdueEmail(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, visitorPath(id, "send-overdue-email"), nil, nil)
}

// Notify sends a free-form notification to the visitor.
func (c *Client) Notify(ctx context.Context, id, message string) error {
	return c.do(ctx, http.MethodPost, visitorPath(id, "notify"), map[string]string{"message": message}, nil)
}

// AuditTrail returns the backend audit entries, optionally for one office.
// Entries are passed through untouched.
func (c *Client) AuditTrail(ctx context.Context, office string) (json.RawMessage, error) {
	path := "/audit-trail"
	if office != "" {
		path += "?office=" + url.QueryEscape(office)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetAppointment fetches the appointment registered under a contact number.
func (c *Client) GetAppointment(ctx context.Context, contact string) (visitor.Record, error) {
	rec, err := c.recordCall(ctx, http.MethodGet, "/appointments/"+url.PathEscape(contact), nil)
	rec.Kind = visitor.KindAppointment
	return rec, err
}

// CreateAppointment registers an appointment through the visitor portal variant.
func (c *Client) CreateAppointment(ctx context.Context, rec visitor.Record) (visitor.Record, error) {
	rec.Kind = visitor.KindAppointment
	body, err := visitor.Encode(rec)
	if err != nil {
		return visitor.Record{}, err
	}
	out, err := c.recordCall(ctx, http.MethodPost, "/appointments", json.RawMessage(body))
	out.Kind = visitor.KindAppointment
	return out, err
}

// SubmitFeedback stores visitor feedback on an appointment.
func (c *Client) SubmitFeedback(ctx context.Context, contact, feedback string) (visitor.Record, error) {
	rec, err := c.recordCall(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(contact)+"/feedback",
		map[string]string{"feedback": feedback})
	rec.Kind = visitor.KindAppointment
	return rec, err
}

func (c *Client) recordCall(ctx context.Context, method, path string, in any) (visitor.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, method, path, in, &raw); err != nil {
		return visitor.Record{}, err
	}
	return decodeEcho(raw)
}

// decodeEcho accepts a bare record or one wrapped in "visitor" or
// "appointment".
func decodeEcho(raw json.RawMessage) (visitor.Record, error) {
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return visitor.Record{}, fmt.Errorf("decode visitor: %w", err)
	}
	for _, key := range []string{"visitor", "appointment"} {
		if inner, ok := wrapped[key]; ok && len(inner) > 0 && inner[0] == '{' {
			return visitor.Decode(inner)
		}
	}
	return visitor.Decode(raw)
}

func visitorPath(id, action string) string {
	p := "/visitors/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}
