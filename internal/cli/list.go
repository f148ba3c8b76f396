package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/pkg/logx"
)

type ListOptions struct {
	*RootOptions
	Store string
	Owner int64
}

// NewListCommand prints the stored reminders without starting the bot. It
// only reads the file, so it is safe next to a running server.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print stored reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := reminder.NewFileStore(opts.Store, logx.Nop()).Peek()
			if err != nil {
				return err
			}
			rs := all[:0]
			for _, r := range all {
				if opts.Owner == 0 || r.OwnerID == opts.Owner {
					rs = append(rs, r)
				}
			}
			sort.SliceStable(rs, func(i, j int) bool { return rs[i].FireAt.Before(rs[j].FireAt) })
			return writeReminders(cmd.OutOrStdout(), opts.Format, rs)
		},
	}
	cmd.Flags().StringVar(&opts.Store, "store", config.DefaultStorePath, "path to the reminders file")
	cmd.Flags().Int64Var(&opts.Owner, "owner", 0, "only show reminders of this chat id")
	return cmd
}

type listItem struct {
	JobID   string `json:"job_id"`
	OwnerID int64  `json:"owner_id"`
	FireAt  string `json:"fire_at"`
	Text    string `json:"text"`
}

func writeReminders(w io.Writer, format string, rs []reminder.Reminder) error {
	if format == "json" {
		items := make([]listItem, 0, len(rs))
		for _, r := range rs {
			items = append(items, listItem{
				JobID:   r.JobID,
				OwnerID: r.OwnerID,
				FireAt:  r.FireAt.Format(reminder.FireAtLayout),
				Text:    r.Text,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(rs) == 0 {
		_, err := fmt.Fprintln(w, "no reminders")
		return err
	}
	for _, r := range rs {
		id := r.JobID
		if id == "" {
			id = "-"
		}
		if _, err := fmt.Fprintf(w, "%s  %d  %s  %s\n", r.FireAt.Format(reminder.FireAtLayout), r.OwnerID, id, r.Text); err != nil {
			return err
		}
	}
	return nil
}
