package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/congregate/backend/internal/editor"
	"github.com/congregate/backend/internal/models"
)

var servicesCmd = &cobra.Command{
	Use:     "services",
	Aliases: []string{"service", "svc"},
	Short:   "List, create and edit services",
}

var svcOpts struct {
	name, start, end         string
	admins, groups           []string
	notes, roles             []string
	removeAdmins, removeGrps []string
	editNotes, editRoles     []string
	deleteNotes, deleteRoles []string
}

var servicesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the tenant's services",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		tenant, err := tenantID()
		if err != nil {
			return err
		}
		items, err := c.ListServices(cmd.Context(), tenant)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTART\tEND\tMANAGE")
		for _, s := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", s.ID, s.Name, orDash(s.DefaultStartTime), orDash(s.DefaultEndTime), s.CanManage)
		}
		return w.Flush()
	},
}

var servicesShowCmd = &cobra.Command{
	Use:   "show <service-id>",
	Short: "Show a service with its admins, groups, notes and roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid service id %q", args[0])
		}
		d, err := c.GetService(cmd.Context(), id)
		if err != nil {
			return err
		}
		printService(cmd, d)
		return nil
	},
}

var servicesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a service with its collections in one step",
	Long: `Create a service. Notes are "text|link" and roles are "name|description";
the part after | is optional.`,
	Args: cobra.NoArgs,
	RunE: runServicesCreate,
}

var servicesEditCmd = &cobra.Command{
	Use:   "edit <service-id>",
	Short: "Edit a service; each collection change is saved immediately",
	Long: `Edit a service. Collection flags are applied one row at a time, in the order
admins, groups, notes, roles. Scalar flags (--name, --start, --end) are saved last.

Edited notes are "<note-id>=text|link"; edited roles are "<role-id>=name|description".
Leaving out "|..." keeps the current link or description; a trailing "|" clears it.`,
	Args: cobra.ExactArgs(1),
	RunE: runServicesEdit,
}

var servicesDeleteCmd = &cobra.Command{
	Use:   "delete <service-id>",
	Short: "Delete a service and everything under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid service id %q", args[0])
		}
		if err := c.DeleteService(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{servicesCreateCmd, servicesEditCmd} {
		f := c.Flags()
		f.StringVar(&svcOpts.name, "name", "", "service name")
		f.StringVar(&svcOpts.start, "start", "", "default start time (HH:MM)")
		f.StringVar(&svcOpts.end, "end", "", "default end time (HH:MM)")
		f.StringArrayVar(&svcOpts.admins, "admin", nil, "member id to make service admin (repeatable)")
		f.StringArrayVar(&svcOpts.groups, "group", nil, "group id to link (repeatable)")
		f.StringArrayVar(&svcOpts.notes, "note", nil, `note as "text|link" (repeatable)`)
		f.StringArrayVar(&svcOpts.roles, "role", nil, `role as "name|description" (repeatable)`)
	}
	_ = servicesCreateCmd.MarkFlagRequired("name")

	f := servicesEditCmd.Flags()
	f.StringArrayVar(&svcOpts.removeAdmins, "remove-admin", nil, "member id to remove as admin (repeatable)")
	f.StringArrayVar(&svcOpts.removeGrps, "remove-group", nil, "group id to unlink (repeatable)")
	f.StringArrayVar(&svcOpts.editNotes, "edit-note", nil, `note edit as "<id>=text|link" (repeatable)`)
	f.StringArrayVar(&svcOpts.editRoles, "edit-role", nil, `role edit as "<id>=name|description" (repeatable)`)
	f.StringArrayVar(&svcOpts.deleteNotes, "delete-note", nil, "note id to delete (repeatable)")
	f.StringArrayVar(&svcOpts.deleteRoles, "delete-role", nil, "role id to delete (repeatable)")

	servicesCmd.AddCommand(servicesListCmd, servicesShowCmd, servicesCreateCmd, servicesEditCmd, servicesDeleteCmd)
}

func runServicesCreate(cmd *cobra.Command, _ []string) error {
	deps, _, err := editorDeps(cmd)
	if err != nil {
		return err
	}
	tenant, err := tenantID()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	var created *models.ServiceDetail
	dlg := editor.NewCreateServiceDialog(editor.NewServiceForm(deps, tenant), func(d *models.ServiceDetail) { created = d })
	dlg.Open(ctx)

	f := dlg.Form
	f.Name, f.DefaultStartTime, f.DefaultEndTime = svcOpts.name, svcOpts.start, svcOpts.end
	if err := applyCollections(ctx, f); err != nil {
		return err
	}
	if err := dlg.Submit(ctx); err != nil {
		return err
	}
	printService(cmd, created)
	return nil
}

func runServicesEdit(cmd *cobra.Command, args []string) error {
	deps, c, err := editorDeps(cmd)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid service id %q", args[0])
	}
	ctx := cmd.Context()
	current, err := c.GetService(ctx, id)
	if err != nil {
		return err
	}
	dlg := editor.NewEditServiceDialog(editor.EditServiceForm(deps, current.Service), nil)
	dlg.Open(ctx)
	f := dlg.Form

	if err := applyCollections(ctx, f); err != nil {
		return err
	}
	if err := removeCollections(ctx, f); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("name") || flags.Changed("start") || flags.Changed("end") {
		if flags.Changed("name") {
			f.Name = svcOpts.name
		}
		if flags.Changed("start") {
			f.DefaultStartTime = svcOpts.start
		}
		if flags.Changed("end") {
			f.DefaultEndTime = svcOpts.end
		}
		if err := dlg.Submit(ctx); err != nil {
			return err
		}
	}
	updated, err := c.GetService(ctx, id)
	if err != nil {
		return err
	}
	printService(cmd, updated)
	return nil
}

// applyCollections runs the additive editor operations in tab order.
func applyCollections(ctx context.Context, f *editor.ServiceForm) error {
	admins, err := parseIDs(svcOpts.admins, "member")
	if err != nil {
		return err
	}
	groups, err := parseIDs(svcOpts.groups, "group")
	if err != nil {
		return err
	}
	for _, id := range admins {
		if err := f.ToggleAdmin(ctx, id, true); err != nil {
			return err
		}
	}
	for _, id := range groups {
		if err := f.ToggleGroup(ctx, id, true); err != nil {
			return err
		}
	}
	for _, raw := range svcOpts.notes {
		text, link := splitPair(raw)
		if err := f.AddNote(ctx, text, link); err != nil {
			return err
		}
	}
	for _, raw := range svcOpts.roles {
		name, desc := splitPair(raw)
		if err := f.AddRole(ctx, name, desc); err != nil {
			return err
		}
	}
	return nil
}

// removeCollections runs the edit-only operations: unchecks, edits and deletes.
func removeCollections(ctx context.Context, f *editor.ServiceForm) error {
	admins, err := parseIDs(svcOpts.removeAdmins, "member")
	if err != nil {
		return err
	}
	groups, err := parseIDs(svcOpts.removeGrps, "group")
	if err != nil {
		return err
	}
	for _, id := range admins {
		if err := f.ToggleAdmin(ctx, id, false); err != nil {
			return err
		}
	}
	for _, id := range groups {
		if err := f.ToggleGroup(ctx, id, false); err != nil {
			return err
		}
	}
	for _, raw := range svcOpts.editNotes {
		id, rest, err := splitEdit(raw, "note")
		if err != nil {
			return err
		}
		text, link := splitKeeping(rest, noteLink(f.Notes, id))
		if err := f.EditNote(ctx, id, text, link); err != nil {
			return fmt.Errorf("note %s: %w", id, err)
		}
	}
	for _, raw := range svcOpts.editRoles {
		id, rest, err := splitEdit(raw, "role")
		if err != nil {
			return err
		}
		name, desc := splitKeeping(rest, roleDescription(f.Roles, id))
		if err := f.EditRole(ctx, id, name, desc); err != nil {
			return fmt.Errorf("role %s: %w", id, err)
		}
	}
	notes, err := parseIDs(svcOpts.deleteNotes, "note")
	if err != nil {
		return err
	}
	for _, id := range notes {
		if err := f.DeleteNote(ctx, id); err != nil {
			return fmt.Errorf("note %s: %w", id, err)
		}
	}
	roles, err := parseIDs(svcOpts.deleteRoles, "role")
	if err != nil {
		return err
	}
	for _, id := range roles {
		if err := f.DeleteRole(ctx, id); err != nil {
			return fmt.Errorf("role %s: %w", id, err)
		}
	}
	return nil
}

func splitEdit(raw, what string) (uuid.UUID, string, error) {
	idPart, rest, ok := strings.Cut(raw, "=")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("%s edit %q must look like <id>=value", what, raw)
	}
	id, err := uuid.Parse(strings.TrimSpace(idPart))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid %s id %q", what, idPart)
	}
	return id, rest, nil
}

// splitKeeping is splitPair for edits: without a "|" the current value is kept,
// while "text|" clears it.
func splitKeeping(raw string, current *string) (string, *string) {
	if !strings.Contains(raw, "|") {
		return raw, current
	}
	return splitPair(raw)
}

func noteLink(notes []models.NoteDraft, id uuid.UUID) *string {
	for _, n := range notes {
		if n.ID == id {
			return n.Link
		}
	}
	return nil
}

func roleDescription(roles []models.RoleDraft, id uuid.UUID) *string {
	for _, r := range roles {
		if r.ID == id {
			return r.Description
		}
	}
	return nil
}

func printService(cmd *cobra.Command, d *models.ServiceDetail) {
	if d == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  %s-%s\n", d.ID, d.Name, orDash(d.DefaultStartTime), orDash(d.DefaultEndTime))
	for _, id := range d.AdminIDs {
		fmt.Fprintf(out, "  admin  %s\n", id)
	}
	for _, id := range d.GroupIDs {
		fmt.Fprintf(out, "  group  %s\n", id)
	}
	for _, n := range d.Notes {
		fmt.Fprintf(out, "  note   %s  %s %s\n", n.ID, n.Text, orDash(n.Link))
	}
	for _, r := range d.Roles {
		fmt.Fprintf(out, "  role   %s  %s %s\n", r.ID, r.Name, orDash(r.Description))
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
