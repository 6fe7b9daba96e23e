package editor

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/validation"
)

// ToggleAdmin checks or unchecks a member as service admin. In edit mode the single join row is
// written first and the selection only changes once that succeeds; a failure is toasted.
func (f *ServiceForm) ToggleAdmin(ctx context.Context, userID uuid.UUID, checked bool) error {
	if !f.Editing() {
		f.SelectedAdmins = toggle(f.SelectedAdmins, userID, checked)
		return nil
	}
	var err error
	if checked {
		err = f.deps.Gateway.AddServiceAdmin(ctx, *f.ServiceID, userID)
	} else {
		err = f.deps.Gateway.RemoveServiceAdmin(ctx, *f.ServiceID, userID)
	}
	if err != nil {
		return f.deps.fail(err, "Services.AdminFailed", "toggle service admin",
			zap.String("service_id", f.ServiceID.String()), zap.String("user_id", userID.String()))
	}
	f.SelectedAdmins = toggle(f.SelectedAdmins, userID, checked)
	return nil
}

// ToggleGroup is ToggleAdmin for linked groups.
func (f *ServiceForm) ToggleGroup(ctx context.Context, groupID uuid.UUID, checked bool) error {
	if !f.Editing() {
		f.SelectedGroups = toggle(f.SelectedGroups, groupID, checked)
		return nil
	}
	var err error
	if checked {
		err = f.deps.Gateway.AddServiceGroup(ctx, *f.ServiceID, groupID)
	} else {
		err = f.deps.Gateway.RemoveServiceGroup(ctx, *f.ServiceID, groupID)
	}
	if err != nil {
		return f.deps.fail(err, "Services.GroupFailed", "toggle service group",
			zap.String("service_id", f.ServiceID.String()), zap.String("group_id", groupID.String()))
	}
	f.SelectedGroups = toggle(f.SelectedGroups, groupID, checked)
	return nil
}

func toggle(ids []uuid.UUID, id uuid.UUID, checked bool) []uuid.UUID {
	i := slices.Index(ids, id)
	switch {
	case checked && i < 0:
		return append(ids, id)
	case !checked && i >= 0:
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

// AddNote validates and appends a note. Validation failures return FieldErrors without a toast.
func (f *ServiceForm) AddNote(ctx context.Context, text string, link *string) error {
	d, err := models.NewNoteDraft(uuid.Nil, text, link)
	if err != nil {
		return err
	}
	if err := f.saveNote(ctx, d); err != nil {
		return err
	}
	f.Notes = append(f.Notes, d)
	return nil
}

// EditNote replaces the note with id in place.
func (f *ServiceForm) EditNote(ctx context.Context, id uuid.UUID, text string, link *string) error {
	i := slices.IndexFunc(f.Notes, func(n models.NoteDraft) bool { return n.ID == id })
	if i < 0 {
		return models.ErrNotFound
	}
	d, err := models.NewNoteDraft(id, text, link)
	if err != nil {
		return err
	}
	if err := f.saveNote(ctx, d); err != nil {
		return err
	}
	f.Notes[i] = d
	return nil
}

// DeleteNote removes the note with id. Other notes keep their identity and order.
func (f *ServiceForm) DeleteNote(ctx context.Context, id uuid.UUID) error {
	i := slices.IndexFunc(f.Notes, func(n models.NoteDraft) bool { return n.ID == id })
	if i < 0 {
		return models.ErrNotFound
	}
	if f.Editing() {
		if err := f.deps.Gateway.DeleteServiceNote(ctx, *f.ServiceID, id); err != nil {
			return f.deps.fail(err, "Services.NoteFailed", "delete service note",
				zap.String("service_id", f.ServiceID.String()), zap.String("note_id", id.String()))
		}
	}
	f.Notes = slices.Delete(f.Notes, i, i+1)
	return nil
}

func (f *ServiceForm) saveNote(ctx context.Context, d models.NoteDraft) error {
	if !f.Editing() {
		return nil
	}
	if _, err := f.deps.Gateway.UpsertServiceNote(ctx, *f.ServiceID, d); err != nil {
		return f.deps.fail(err, "Services.NoteFailed", "save service note",
			zap.String("service_id", f.ServiceID.String()), zap.String("note_id", d.ID.String()))
	}
	return nil
}

// AddRole validates and appends a role.
func (f *ServiceForm) AddRole(ctx context.Context, name string, description *string) error {
	d, err := models.NewRoleDraft(uuid.Nil, name, description)
	if err != nil {
		return err
	}
	if err := f.saveRole(ctx, d); err != nil {
		return err
	}
	f.Roles = append(f.Roles, d)
	return nil
}

func (f *ServiceForm) EditRole(ctx context.Context, id uuid.UUID, name string, description *string) error {
	i := slices.IndexFunc(f.Roles, func(r models.RoleDraft) bool { return r.ID == id })
	if i < 0 {
		return models.ErrNotFound
	}
	d, err := models.NewRoleDraft(id, name, description)
	if err != nil {
		return err
	}
	if err := f.saveRole(ctx, d); err != nil {
		return err
	}
	f.Roles[i] = d
	return nil
}

func (f *ServiceForm) DeleteRole(ctx context.Context, id uuid.UUID) error {
	i := slices.IndexFunc(f.Roles, func(r models.RoleDraft) bool { return r.ID == id })
	if i < 0 {
		return models.ErrNotFound
	}
	if f.Editing() {
		if err := f.deps.Gateway.DeleteServiceRole(ctx, *f.ServiceID, id); err != nil {
			return f.deps.fail(err, "Services.RoleFailed", "delete service role",
				zap.String("service_id", f.ServiceID.String()), zap.String("role_id", id.String()))
		}
	}
	f.Roles = slices.Delete(f.Roles, i, i+1)
	return nil
}

func (f *ServiceForm) saveRole(ctx context.Context, d models.RoleDraft) error {
	if !f.Editing() {
		return nil
	}
	if _, err := f.deps.Gateway.UpsertServiceRole(ctx, *f.ServiceID, d); err != nil {
		return f.deps.fail(err, "Services.RoleFailed", "save service role",
			zap.String("service_id", f.ServiceID.String()), zap.String("role_id", d.ID.String()))
	}
	return nil
}

// IsFieldError reports whether err is a validation failure rather than a persistence one.
func IsFieldError(err error) bool {
	_, ok := err.(validation.FieldErrors)
	return ok
}
