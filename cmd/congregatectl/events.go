package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/congregate/backend/internal/client"
	"github.com/congregate/backend/internal/editor"
	"github.com/congregate/backend/internal/models"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"event", "ev"},
	Short:   "List, create, copy and edit service events",
}

var evOpts struct {
	service                    string
	date, start, end, subtitle string
	owners, removeOwners       []string
	from, to                   string
}

var eventsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List events with their owners",
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
		filter := client.EventFilter{From: evOpts.from, To: evOpts.to}
		if evOpts.service != "" {
			id, err := uuid.Parse(evOpts.service)
			if err != nil {
				return fmt.Errorf("invalid service id %q", evOpts.service)
			}
			filter.ServiceID = &id
		}
		rows, err := c.ListEvents(cmd.Context(), tenant, filter)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tTIME\tSUBTITLE\tOWNERS\tMANAGE")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s-%s\t%s\t%d\t%t\n", r.ID, r.Date, r.StartTime, r.EndTime, orDash(r.Subtitle), len(r.Owners), r.CanManage)
		}
		return w.Flush()
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Schedule an event of a service",
	Long: `Schedule an event. Start and end default to the service's default times.
Owners are "<user-id>:<role-id>"; repeating a pair has no effect.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		deps, _, err := editorDeps(cmd)
		if err != nil {
			return err
		}
		tenant, err := tenantID()
		if err != nil {
			return err
		}
		service, err := uuid.Parse(evOpts.service)
		if err != nil {
			return fmt.Errorf("invalid service id %q", evOpts.service)
		}
		return runEventDialog(cmd, editor.NewCreateEventDialog(deps, tenant, nil, printEvent(cmd)), &service)
	},
}

var eventsCopyCmd = &cobra.Command{
	Use:   "copy <event-id>",
	Short: "Copy an event, its times and owners, to another date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, c, err := editorDeps(cmd)
		if err != nil {
			return err
		}
		src, err := loadEvent(cmd, c, args[0])
		if err != nil {
			return err
		}
		return runEventDialog(cmd, editor.NewCopyEventDialog(deps, src, printEvent(cmd)), nil)
	},
}

var eventsEditCmd = &cobra.Command{
	Use:   "edit <event-id>",
	Short: "Edit an event's date, times, subtitle and owners",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, c, err := editorDeps(cmd)
		if err != nil {
			return err
		}
		ev, err := loadEvent(cmd, c, args[0])
		if err != nil {
			return err
		}
		return runEventDialog(cmd, editor.NewEditEventDialog(deps, ev, printEvent(cmd)), nil)
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid event id %q", args[0])
		}
		if err := c.DeleteEvent(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		return nil
	},
}

func init() {
	eventsListCmd.Flags().StringVar(&evOpts.service, "service", "", "only events of this service")
	eventsListCmd.Flags().StringVar(&evOpts.from, "from", "", "first date (YYYY-MM-DD)")
	eventsListCmd.Flags().StringVar(&evOpts.to, "to", "", "last date (YYYY-MM-DD)")

	for _, c := range []*cobra.Command{eventsCreateCmd, eventsCopyCmd, eventsEditCmd} {
		f := c.Flags()
		f.StringVar(&evOpts.date, "date", "", "event date (YYYY-MM-DD)")
		f.StringVar(&evOpts.start, "start", "", "start time (HH:MM)")
		f.StringVar(&evOpts.end, "end", "", "end time (HH:MM)")
		f.StringVar(&evOpts.subtitle, "subtitle", "", "subtitle; empty clears it")
		f.StringArrayVar(&evOpts.owners, "owner", nil, `owner as "<user-id>:<role-id>" (repeatable)`)
		f.StringArrayVar(&evOpts.removeOwners, "remove-owner", nil, `owner to drop as "<user-id>:<role-id>" (repeatable)`)
	}
	eventsCreateCmd.Flags().StringVar(&evOpts.service, "service", "", "service id")
	_ = eventsCreateCmd.MarkFlagRequired("service")
	_ = eventsCreateCmd.MarkFlagRequired("date")

	eventsCmd.AddCommand(eventsListCmd, eventsCreateCmd, eventsCopyCmd, eventsEditCmd, eventsDeleteCmd)
}

func loadEvent(cmd *cobra.Command, c *client.Client, raw string) (models.ServiceEvent, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return models.ServiceEvent{}, fmt.Errorf("invalid event id %q", raw)
	}
	row, err := c.GetEvent(cmd.Context(), id)
	if err != nil {
		return models.ServiceEvent{}, err
	}
	return row.ServiceEvent, nil
}

// runEventDialog opens d, applies the flags that were given, and submits.
func runEventDialog(cmd *cobra.Command, d *editor.EventDialog, service *uuid.UUID) error {
	ctx := cmd.Context()
	d.Open(ctx)
	f := d.Form
	if service != nil {
		if err := f.SelectService(ctx, *service); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("date") {
		f.Date = evOpts.date
	}
	if flags.Changed("start") {
		f.StartTime = evOpts.start
	}
	if flags.Changed("end") {
		f.EndTime = evOpts.end
	}
	if flags.Changed("subtitle") {
		f.Subtitle = evOpts.subtitle
	}
	for _, raw := range evOpts.removeOwners {
		user, role, err := parseOwner(raw)
		if err != nil {
			return err
		}
		f.RemoveOwner(user, role)
	}
	for _, raw := range evOpts.owners {
		user, role, err := parseOwner(raw)
		if err != nil {
			return err
		}
		if !f.AddOwner(user, role) {
			fmt.Fprintf(cmd.ErrOrStderr(), "owner %s already assigned, skipped\n", raw)
		}
	}
	return d.Submit(ctx)
}

func parseOwner(raw string) (uuid.UUID, uuid.UUID, error) {
	u, r, ok := strings.Cut(raw, ":")
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("owner %q must look like <user-id>:<role-id>", raw)
	}
	user, err := uuid.Parse(strings.TrimSpace(u))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid user id in owner %q", raw)
	}
	role, err := uuid.Parse(strings.TrimSpace(r))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid role id in owner %q", raw)
	}
	return user, role, nil
}

func printEvent(cmd *cobra.Command) func(*models.ServiceEventRow) {
	return func(r *models.ServiceEventRow) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s %s-%s  %s\n", r.ID, r.Date, r.StartTime, r.EndTime, orDash(r.Subtitle))
		for _, o := range r.Owners {
			fmt.Fprintf(out, "  owner  %s as %s\n", o.UserID, o.ServiceRoleID)
		}
	}
}
