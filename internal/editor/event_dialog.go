package editor

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
)

// EventDialog is the shell shared by the create, copy and edit event dialogs. The form's Mode
// decides which call Submit makes.
type EventDialog struct {
	Form      *EventForm
	IsOpen    bool
	OnSuccess func(*models.ServiceEventRow)
}

type (
	CreateEventDialog = EventDialog
	CopyEventDialog   = EventDialog
	EditEventDialog   = EventDialog
)

func NewCreateEventDialog(deps Deps, tenantID uuid.UUID, initial *EventInitial, onSuccess func(*models.ServiceEventRow)) *CreateEventDialog {
	return &EventDialog{Form: NewEventForm(deps, tenantID, initial), OnSuccess: onSuccess}
}

func NewCopyEventDialog(deps Deps, src models.ServiceEvent, onSuccess func(*models.ServiceEventRow)) *CopyEventDialog {
	return &EventDialog{Form: CopyEventForm(deps, src), OnSuccess: onSuccess}
}

func NewEditEventDialog(deps Deps, ev models.ServiceEvent, onSuccess func(*models.ServiceEventRow)) *EditEventDialog {
	return &EventDialog{Form: EditEventForm(deps, ev), OnSuccess: onSuccess}
}

func (d *EventDialog) Open(ctx context.Context) {
	d.IsOpen = true
	d.Form.Reset()
	d.Form.Open(ctx)
}

func (d *EventDialog) Cancel() {
	d.IsOpen = false
	d.Form.Reset()
}

func (d *EventDialog) SubmitLabel() string {
	f := d.Form
	switch {
	case f.IsSubmitting:
		return f.deps.Translator.T("Common.Submitting", nil)
	case f.Mode == models.EventModeEdit:
		return f.deps.Translator.T("Common.Save", nil)
	}
	return f.deps.Translator.T("Common.Create", nil)
}

// Submit validates and persists the event. Validation failures return FieldErrors and keep the
// dialog open without a toast.
func (d *EventDialog) Submit(ctx context.Context) error {
	f := d.Form
	in, err := f.Input()
	if err != nil {
		return err
	}
	f.IsSubmitting = true
	defer func() { f.IsSubmitting = false }()

	var (
		row                  *models.ServiceEventRow
		failKey, title, body string
	)
	switch f.Mode {
	case models.EventModeEdit:
		failKey, title, body = "Events.UpdateFailed", "Events.Updated.Title", "Events.Updated.Body"
		row, err = f.deps.Gateway.UpdateEvent(ctx, *f.EventID, in)
	case models.EventModeCopy:
		failKey, title, body = "Events.CreateFailed", "Events.Copied.Title", "Events.Copied.Body"
		row, err = f.deps.Gateway.CreateEvent(ctx, f.TenantID, in)
	default:
		failKey, title, body = "Events.CreateFailed", "Events.Created.Title", "Events.Created.Body"
		row, err = f.deps.Gateway.CreateEvent(ctx, f.TenantID, in)
	}
	if err != nil {
		return f.deps.fail(err, failKey, "submit event",
			zap.String("mode", string(f.Mode)), zap.String("service_id", in.ServiceID.String()))
	}
	f.deps.succeed(title, body, map[string]any{"Date": row.Date})
	if d.OnSuccess != nil {
		d.OnSuccess(row)
	}
	d.IsOpen = false
	if f.Mode == models.EventModeEdit {
		f.initial = initialFrom(row.ServiceEvent)
	}
	f.Reset()
	return nil
}
