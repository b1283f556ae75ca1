package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"visitordesk/internal/backend"
	"visitordesk/internal/camera"
	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/visitor"
)

// Step is a wizard position.
type Step int

const (
	StepIdentity Step = iota + 1
	StepAppointment
	StepConfirm
)

var (
	// ErrWrongStep is returned when an operation does not belong to the
	// draft's current step.
	ErrWrongStep = errors.New("operation not allowed at this registration step")
	// ErrDuplicate matches every *DuplicateError.
	ErrDuplicate = errors.New("duplicate appointment")
)

// DuplicateError carries the message shown to the visitor. When the backend
// rejected the booking the message is the server's, verbatim.
type DuplicateError struct {
	Message string
}

func (e *DuplicateError) Error() string { return e.Message }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Draft is an in-progress registration.
type Draft struct {
	ID            string       `json:"id"`
	Kind          visitor.Kind `json:"kind"`
	Step          Step         `json:"step"`
	Identity      Identity     `json:"identity"`
	Appointment   Appointment  `json:"appointment"`
	IDFile        string       `json:"idFile,omitempty"`
	SuggestedName string       `json:"suggestedName,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Record is the visitor record the draft will create.
func (d Draft) Record() visitor.Record {
	return visitor.Record{
		Kind:          d.Kind,
		Name:          strings.TrimSpace(d.Identity.Name),
		ContactNumber: d.Identity.ContactNumber,
		Email:         d.Identity.Email,
		Office:        d.Appointment.Office,
		Purpose:       strings.TrimSpace(d.Appointment.Purpose),
		ScheduledDate: d.Appointment.ScheduledDate,
		ScheduledTime: d.Appointment.ScheduledTime,
		IDFile:        d.IDFile,
	}
}

// Creator persists confirmed registrations.
type Creator interface {
	CreateVisitor(ctx context.Context, rec visitor.Record) (visitor.Record, error)
	CreateAppointment(ctx context.Context, rec visitor.Record) (visitor.Record, error)
}

// Confirmation is the outcome of a confirmed draft.
type Confirmation struct {
	Record visitor.Record `json:"record"`
	QR     string         `json:"qr"`
	QRPNG  []byte         `json:"-"`
}

// Wizard drives registrations from identity entry to backend creation.
type Wizard struct {
	Backend  Creator
	Calendar *Calendar
	Drafts   DraftStore
	Guard    DuplicateGuard
	Names    NameReader
	QRSize   int
	Metrics  *metrics.Metrics
	Log      *logrus.Logger
	Now      func() time.Time
}

func (w *Wizard) log() *logrus.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logging.Logger()
}

func (w *Wizard) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Start opens a new draft. kind selects the backend resource created on
// confirm.
func (w *Wizard) Start(ctx context.Context, kind visitor.Kind) (Draft, error) {
	if kind == "" {
		kind = visitor.KindVisitor
	}
	d := Draft{ID: uuid.NewString(), Kind: kind, Step: StepIdentity}
	return d, w.save(ctx, &d)
}

// Get loads a draft.
func (w *Wizard) Get(ctx context.Context, id string) (Draft, error) {
	return w.Drafts.Load(ctx, id)
}

func (w *Wizard) save(ctx context.Context, d *Draft) error {
	d.UpdatedAt = w.now()
	if err := w.Drafts.Save(ctx, *d); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (w *Wizard) at(ctx context.Context, id string, steps ...Step) (Draft, error) {
	d, err := w.Drafts.Load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	for _, s := range steps {
		if d.Step == s {
			return d, nil
		}
	}
	return Draft{}, ErrWrongStep
}

// SubmitIdentity validates the identity step and advances.
func (w *Wizard) SubmitIdentity(ctx context.Context, id string, in Identity) (Draft, error) {
	d, err := w.at(ctx, id, StepIdentity)
	if err != nil {
		return Draft{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.ContactNumber = strings.TrimSpace(in.ContactNumber)
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateIdentity(in); err != nil {
		return Draft{}, err
	}
	d.Identity = in
	d.Step = StepAppointment
	return d, w.save(ctx, &d)
}

// AttachID stores the uploaded ID image and, when OCR is available, a
// suggested name read from it.
func (w *Wizard) AttachID(ctx context.Context, id string, data []byte) (Draft, error) {
	d, err := w.at(ctx, id, StepAppointment)
	if err != nil {
		return Draft{}, err
	}
	dataURL, err := idImage(data)
	if err != nil {
		return Draft{}, err
	}
	d.IDFile = dataURL
	if name := w.suggestName(ctx, data); name != "" {
		d.SuggestedName = name
		if d.Identity.Name == "" {
			d.Identity.Name = name
		}
	}
	return d, w.save(ctx, &d)
}

// AttachIDDataURL is AttachID for a base64 data URL.
func (w *Wizard) AttachIDDataURL(ctx context.Context, id, dataURL string) (Draft, error) {
	data, err := camera.DecodeDataURL(dataURL)
	if err != nil {
		return Draft{}, fieldError("idFile", "ID image could not be decoded")
	}
	return w.AttachID(ctx, id, data)
}

// CaptureID takes one frame from cam and attaches it as the ID image.
func (w *Wizard) CaptureID(ctx context.Context, id string, cam camera.Opener) (Draft, error) {
	stream, err := cam.Open(ctx)
	if err != nil {
		return Draft{}, err
	}
	defer stream.Close()
	frame, err := stream.Frame(ctx)
	if err != nil {
		return Draft{}, err
	}
	return w.AttachID(ctx, id, frame.Data)
}

// SubmitAppointment validates the appointment step against the calendar
// and advances to confirmation. The ID image must already be attached.
func (w *Wizard) SubmitAppointment(ctx context.Context, id string, in Appointment) (Draft, error) {
	d, err := w.at(ctx, id, StepAppointment)
	if err != nil {
		return Draft{}, err
	}
	in.Purpose = strings.TrimSpace(in.Purpose)
	if err := w.checkAppointment(ctx, in); err != nil {
		return Draft{}, err
	}
	// Keep the entered fields even when the ID is still missing.
	d.Appointment = in
	if d.IDFile == "" {
		_ = w.save(ctx, &d)
		return Draft{}, fieldError("idFile", "an ID image is required")
	}
	d.Step = StepConfirm
	return d, w.save(ctx, &d)
}

func (w *Wizard) checkAppointment(ctx context.Context, in Appointment) error {
	if err := ValidateAppointment(in); err != nil {
		return err
	}
	if w.Calendar == nil {
		return nil
	}
	if err := w.Calendar.Check(ctx, in.ScheduledDate); err != nil {
		return fieldError("scheduledDate", err.Error())
	}
	return nil
}

// Back moves one step back without discarding anything entered.
func (w *Wizard) Back(ctx context.Context, id string) (Draft, error) {
	d, err := w.at(ctx, id, StepAppointment, StepConfirm)
	if err != nil {
		return Draft{}, err
	}
	d.Step--
	return d, w.save(ctx, &d)
}

// Confirm creates the visitor on the backend. Only this step talks to the
// backend; the draft is discarded on success.
func (w *Wizard) Confirm(ctx context.Context, id string) (Confirmation, error) {
	conf, err := w.confirm(ctx, id)
	switch {
	case err == nil:
		w.Metrics.Registration("created")
	case errors.Is(err, ErrDuplicate):
		w.Metrics.Registration("duplicate")
	default:
		var verr *ValidationError
		if errors.As(err, &verr) {
			w.Metrics.Registration("invalid")
		} else {
			w.Metrics.Registration("error")
		}
	}
	return conf, err
}

func (w *Wizard) confirm(ctx context.Context, id string) (Confirmation, error) {
	d, err := w.at(ctx, id, StepConfirm)
	if err != nil {
		return Confirmation{}, err
	}
	if err := ValidateIdentity(d.Identity); err != nil {
		return Confirmation{}, err
	}
	if err := w.checkAppointment(ctx, d.Appointment); err != nil {
		return Confirmation{}, err
	}
	if d.IDFile == "" {
		return Confirmation{}, fieldError("idFile", "an ID image is required")
	}

	contact, date, at := d.Identity.ContactNumber, d.Appointment.ScheduledDate, d.Appointment.ScheduledTime
	if w.Guard != nil {
		seen, err := w.Guard.Seen(ctx, contact, date, at)
		if err != nil {
			logging.LogError(w.log(), "registration", "Confirm", "duplicate guard lookup", d.ID, err)
		} else if seen {
			return Confirmation{}, &DuplicateError{Message: fmt.Sprintf("an appointment for %s on %s at %s already exists", contact, date, at)}
		}
	}

	rec := d.Record()
	qr := visitor.NewQRPayload(rec).Encode()
	rec.QRData = qr

	create := w.Backend.CreateVisitor
	if d.Kind == visitor.KindAppointment {
		create = w.Backend.CreateAppointment
	}
	created, err := create(ctx, rec)
	if err != nil {
		if errors.Is(err, backend.ErrConflict) {
			return Confirmation{}, &DuplicateError{Message: err.Error()}
		}
		return Confirmation{}, fmt.Errorf("create %s: %w", d.Kind, err)
	}
	if created.QRData == "" {
		created.QRData = qr
	}

	if w.Guard != nil {
		if err := w.Guard.Remember(ctx, contact, date, at); err != nil {
			logging.LogError(w.log(), "registration", "Confirm", "remember booking", d.ID, err)
		}
	}
	if err := w.Drafts.Delete(ctx, d.ID); err != nil {
		logging.LogError(w.log(), "registration", "Confirm", "delete draft", d.ID, err)
	}

	png, err := QRCode(qr, w.QRSize)
	if err != nil {
		logging.LogError(w.log(), "registration", "Confirm", "render qr", d.ID, err)
	}
	return Confirmation{Record: created, QR: qr, QRPNG: png}, nil
}

// QRCode renders content as a PNG QR code.
func QRCode(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
