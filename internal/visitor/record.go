package visitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Office is one of the fixed offices a visitor can be scheduled for.
type Office string

const (
	OfficeRegistrar Office = "Registrar"
	OfficeGuidance  Office = "Guidance"
	OfficeCashier   Office = "Cashier"
	OfficeDean      Office = "Dean"
	OfficeLibrary   Office = "Library"
)

// Offices lists the valid offices in display order.
var Offices = []Office{OfficeRegistrar, OfficeGuidance, OfficeCashier, OfficeDean, OfficeLibrary}

// Valid reports whether o is one of Offices.
func (o Office) Valid() bool {
	for _, known := range Offices {
		if o == known {
			return true
		}
	}
	return false
}

// Kind tags which backend shape a record was decoded from.
type Kind string

const (
	KindVisitor     Kind = "visitor"
	KindAppointment Kind = "appointment"
)

// Record is a visit request and its lifecycle. Lifecycle timestamps are set
// at most once, in the order TimeIn, ProcessingStartedTime,
// OfficeProcessedTime, TimeOut.
type Record struct {
	ID            string `json:"id"`
	Kind          Kind   `json:"kind,omitempty"`
	Name          string `json:"name"`
	ContactNumber string `json:"contactNumber"`
	Email         string `json:"email,omitempty"`
	Office        Office `json:"office"`
	Purpose       string `json:"purpose"`
	ScheduledDate string `json:"scheduledDate,omitempty"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	IDFile        string `json:"idFile,omitempty"`
	FaceImage     string `json:"faceImage,omitempty"`
	QRData        string `json:"qrData,omitempty"`
	Feedback      string `json:"feedback,omitempty"`

	TimeIn                *time.Time `json:"timeIn"`
	ProcessingStartedTime *time.Time `json:"processingStartedTime"`
	OfficeProcessedTime   *time.Time `json:"officeProcessedTime"`
	TimeOut               *time.Time `json:"timeOut"`

	Processed        bool  `json:"processed"`
	Accepted         *bool `json:"accepted"`
	OverdueEmailSent bool  `json:"overdueEmailSent"`
}

// EnsureID assigns a local id when the backend did not send one. The id is
// a SHA-1 UUID over the fields fixed at registration (contact, name, email,
// office, purpose, schedule, ID photo and QR payload), so the same
// payload gets the same id on every poll. A record with none of them gets a
// random id.
func EnsureID(r Record) Record {
	return derivedID(r, 0)
}

// EnsureIDs runs EnsureID over a fetched batch. Id-less records that are
// identical in every registration field are told apart by their order of
// appearance, so none of them is dropped as a duplicate.
func EnsureIDs(recs []Record) []Record {
	out := make([]Record, len(recs))
	seen := make(map[string]int)
	for i, r := range recs {
		if r.ID != "" {
			out[i] = r
			continue
		}
		key := idKey(r)
		out[i] = derivedID(r, seen[key])
		seen[key]++
	}
	return out
}

func idKey(r Record) string {
	return strings.Join([]string{
		r.ContactNumber, r.Name, r.Email, string(r.Office), r.Purpose,
		r.ScheduledDate, r.ScheduledTime, r.IDFile, r.QRData,
	}, "|")
}

func derivedID(r Record, n int) Record {
	if r.ID != "" {
		return r
	}
	key := idKey(r)
	if strings.Trim(key, "|") == "" {
		r.ID = uuid.NewString()
		return r
	}
	if n > 0 {
		key += "#" + strconv.Itoa(n)
	}
	r.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	return r
}

// IsAccepted is true only when the office explicitly accepted the visit.
func (r Record) IsAccepted() bool { return r.Accepted != nil && *r.Accepted }

// IsDeclined is true only when the office explicitly declined the visit.
func (r Record) IsDeclined() bool { return r.Accepted != nil && !*r.Accepted }

// IsPendingApproval is true while no accept/decline decision exists.
func (r Record) IsPendingApproval() bool { return r.Accepted == nil }

// ReferenceImage is the image the verification gate compares live frames against.
func (r Record) ReferenceImage() string {
	if r.FaceImage != "" {
		return r.FaceImage
	}
	return r.IDFile
}

// ErrInvariant wraps every invariant violation found by CheckInvariants.
var ErrInvariant = errors.New("visitor invariant violated")

// CheckInvariants validates the cross-field rules every record must satisfy.
func CheckInvariants(r Record) error {
	switch {
	case r.TimeOut != nil && r.TimeIn == nil:
		return fmt.Errorf("%w: timeOut set without timeIn", ErrInvariant)
	case r.Processed && r.ProcessingStartedTime == nil:
		return fmt.Errorf("%w: processed without processingStartedTime", ErrInvariant)
	case r.OfficeProcessedTime != nil && r.ProcessingStartedTime == nil:
		return fmt.Errorf("%w: officeProcessedTime without processingStartedTime", ErrInvariant)
	case r.Processed != (r.OfficeProcessedTime != nil):
		return fmt.Errorf("%w: processed and officeProcessedTime disagree", ErrInvariant)
	case r.IsDeclined() && (r.ProcessingStartedTime != nil || r.Processed):
		return fmt.Errorf("%w: declined record entered processing", ErrInvariant)
	case before(r.TimeOut, r.TimeIn):
		return fmt.Errorf("%w: timeOut precedes timeIn", ErrInvariant)
	case before(r.OfficeProcessedTime, r.ProcessingStartedTime):
		return fmt.Errorf("%w: officeProcessedTime precedes processingStartedTime", ErrInvariant)
	}
	return nil
}

func before(later, earlier *time.Time) bool {
	return later != nil && earlier != nil && later.Before(*earlier)
}
