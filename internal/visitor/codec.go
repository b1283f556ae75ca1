package visitor

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireRecord accepts both backend shapes. Field compatibility:
//
//	Record field   visitor shape    appointment shape
//	ID             id | _id         _id | id
//	Name           visitorName      name
//	ContactNumber  visitorID        contactNumber
//	Feedback       -                feedback
//
// Every other field has the same key in both shapes. When both keys of a
// pair are present the appointment key wins. Callers that know the source
// endpoint override Kind; from the payload alone only feedback marks an
// appointment.
type wireRecord struct {
	ID            string `json:"id"`
	MongoID       string `json:"_id"`
	Name          string `json:"name"`
	VisitorName   string `json:"visitorName"`
	ContactNumber string `json:"contactNumber"`
	VisitorID     string `json:"visitorID"`
	Email         string `json:"email"`
	Office        Office `json:"office"`
	Purpose       string `json:"purpose"`
	ScheduledDate string `json:"scheduledDate"`
	ScheduledTime string `json:"scheduledTime"`
	IDFile        string `json:"idFile"`
	FaceImage     string `json:"faceImage"`
	QRData        string `json:"qrData"`
	Feedback      string `json:"feedback"`

	TimeIn                *time.Time `json:"timeIn"`
	ProcessingStartedTime *time.Time `json:"processingStartedTime"`
	OfficeProcessedTime   *time.Time `json:"officeProcessedTime"`
	TimeOut               *time.Time `json:"timeOut"`

	Processed        bool  `json:"processed"`
	Accepted         *bool `json:"accepted"`
	OverdueEmailSent bool  `json:"overdueEmailSent"`
}

func (w wireRecord) record() Record {
	r := Record{
		ID:                    firstNonEmpty(w.MongoID, w.ID),
		Kind:                  KindVisitor,
		Name:                  firstNonEmpty(w.Name, w.VisitorName),
		ContactNumber:         firstNonEmpty(w.ContactNumber, w.VisitorID),
		Email:                 w.Email,
		Office:                w.Office,
		Purpose:               w.Purpose,
		ScheduledDate:         w.ScheduledDate,
		ScheduledTime:         w.ScheduledTime,
		IDFile:                w.IDFile,
		FaceImage:             w.FaceImage,
		QRData:                w.QRData,
		Feedback:              w.Feedback,
		TimeIn:                w.TimeIn,
		ProcessingStartedTime: w.ProcessingStartedTime,
		OfficeProcessedTime:   w.OfficeProcessedTime,
		TimeOut:               w.TimeOut,
		Processed:             w.Processed,
		Accepted:              w.Accepted,
		OverdueEmailSent:      w.OverdueEmailSent,
	}
	if w.Feedback != "" {
		r.Kind = KindAppointment
	}
	return r
}

// Decode maps one backend payload of either shape onto a Record.
func Decode(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("decode visitor: %w", err)
	}
	return w.record(), nil
}

// DecodeList maps a backend collection onto Records. Both a bare array and
// an object with a "visitors" or "appointments" array are accepted.
func DecodeList(data []byte) ([]Record, error) {
	var items []wireRecord
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Visitors     []wireRecord `json:"visitors"`
			Appointments []wireRecord `json:"appointments"`
		}
		if werr := json.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("decode visitors: %w", err)
		}
		items = append(wrapped.Visitors, wrapped.Appointments...)
	}
	out := make([]Record, 0, len(items))
	for _, w := range items {
		out = append(out, w.record())
	}
	return out, nil
}

// createRecord is the body of a create request. A visitor carries its
// contact under visitorID, an appointment under contactNumber. The id and
// every lifecycle field belong to the server and are never sent.
type createRecord struct {
	Name          string `json:"name"`
	VisitorID     string `json:"visitorID,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
	Email         string `json:"email,omitempty"`
	Office        Office `json:"office,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	ScheduledDate string `json:"scheduledDate,omitempty"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	IDFile        string `json:"idFile,omitempty"`
	FaceImage     string `json:"faceImage,omitempty"`
	QRData        string `json:"qrData,omitempty"`
}

// Encode renders r as the create payload of its kind.
func Encode(r Record) ([]byte, error) {
	w := createRecord{
		Name:          r.Name,
		Email:         r.Email,
		Office:        r.Office,
		Purpose:       r.Purpose,
		ScheduledDate: r.ScheduledDate,
		ScheduledTime: r.ScheduledTime,
		IDFile:        r.IDFile,
		FaceImage:     r.FaceImage,
		QRData:        r.QRData,
	}
	if r.Kind == KindAppointment {
		w.ContactNumber = r.ContactNumber
	} else {
		w.VisitorID = r.ContactNumber
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode visitor: %w", err)
	}
	return b, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
