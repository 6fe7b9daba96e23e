package editor

import (
	"context"

	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
)

// CreateServiceDialog wraps a create-mode ServiceForm.
type CreateServiceDialog struct {
	Form      *ServiceForm
	IsOpen    bool
	OnSuccess func(*models.ServiceDetail)
}

func NewCreateServiceDialog(f *ServiceForm, onSuccess func(*models.ServiceDetail)) *CreateServiceDialog {
	return &CreateServiceDialog{Form: f, OnSuccess: onSuccess}
}

func (d *CreateServiceDialog) Open(ctx context.Context) {
	d.IsOpen = true
	d.Form.Open(ctx)
}

// Cancel closes the dialog and discards the draft.
func (d *CreateServiceDialog) Cancel() {
	d.IsOpen = false
	d.Form.Reset()
}

// SubmitLabel is the label of the submit button in its current state.
func (d *CreateServiceDialog) SubmitLabel() string {
	return submitLabel(d.Form, "Common.Create")
}

// Submit creates the service with every collection gathered so far. On success the dialog
// closes and the form resets; on failure it stays open with the draft intact.
func (d *CreateServiceDialog) Submit(ctx context.Context) error {
	f := d.Form
	fields, err := f.Fields()
	if err != nil {
		return err
	}
	f.IsSubmitting = true
	defer func() { f.IsSubmitting = false }()

	created, err := f.deps.Gateway.CreateService(ctx, f.TenantID, f.input(fields))
	if err != nil {
		return f.deps.fail(err, "Services.CreateFailed", "create service", zap.String("tenant_id", f.TenantID.String()))
	}
	f.deps.succeed("Services.Created.Title", "Services.Created.Body", map[string]any{"Name": created.Name})
	if d.OnSuccess != nil {
		d.OnSuccess(created)
	}
	d.IsOpen = false
	f.Reset()
	return nil
}

// EditServiceDialog wraps an edit-mode ServiceForm. Collections are already persisted by the
// time Submit runs, so it only writes the scalar fields.
type EditServiceDialog struct {
	Form      *ServiceForm
	IsOpen    bool
	OnSuccess func(*models.Service)
}

func NewEditServiceDialog(f *ServiceForm, onSuccess func(*models.Service)) *EditServiceDialog {
	return &EditServiceDialog{Form: f, OnSuccess: onSuccess}
}

func (d *EditServiceDialog) Open(ctx context.Context) {
	d.IsOpen = true
	d.Form.Reset()
	d.Form.Open(ctx)
}

func (d *EditServiceDialog) Cancel() {
	d.IsOpen = false
}

func (d *EditServiceDialog) SubmitLabel() string {
	return submitLabel(d.Form, "Common.Save")
}

func (d *EditServiceDialog) Submit(ctx context.Context) error {
	f := d.Form
	fields, err := f.Fields()
	if err != nil {
		return err
	}
	f.IsSubmitting = true
	defer func() { f.IsSubmitting = false }()

	updated, err := f.deps.Gateway.UpdateService(ctx, *f.ServiceID, fields)
	if err != nil {
		return f.deps.fail(err, "Services.UpdateFailed", "update service", zap.String("service_id", f.ServiceID.String()))
	}
	f.deps.succeed("Services.Updated.Title", "Services.Updated.Body", map[string]any{"Name": updated.Name})
	f.initial = updated
	if d.OnSuccess != nil {
		d.OnSuccess(updated)
	}
	d.IsOpen = false
	return nil
}

func submitLabel(f *ServiceForm, idle string) string {
	if f.IsSubmitting {
		return f.deps.Translator.T("Common.Submitting", nil)
	}
	return f.deps.Translator.T(idle, nil)
}
