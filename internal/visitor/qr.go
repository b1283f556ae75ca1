package visitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QRPayload is the content encoded in a visitor's QR code.
type QRPayload struct {
	ContactNumber string `json:"contactNumber"`
	Name          string `json:"name"`
}

// NewQRPayload builds the payload for r.
func NewQRPayload(r Record) QRPayload {
	return QRPayload{ContactNumber: r.ContactNumber, Name: r.Name}
}

// Encode renders the payload as compact JSON.
func (p QRPayload) Encode() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// Matches reports whether r is the visitor the payload was issued for.
func (p QRPayload) Matches(r Record) bool {
	return r.ContactNumber == p.ContactNumber && strings.EqualFold(r.Name, p.Name)
}

// ParseQR decodes scanned QR text.
func ParseQR(text string) (QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &p); err != nil {
		return QRPayload{}, fmt.Errorf("invalid qr payload: %w", err)
	}
	if p.ContactNumber == "" || p.Name == "" {
		return QRPayload{}, errors.New("invalid qr payload: contactNumber and name are required")
	}
	return p, nil
}
