package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/timespec"
)

// NewParseTimeCommand shows how a time typed in chat would be understood.
func NewParseTimeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse-time <text>",
		Short: "Normalize a time the way the bot does",
		Example: `  remindbot parse-time "9.30"
  remindbot parse-time --format json "21 05"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			c, err := timespec.Parse(raw)
			if err != nil {
				return err
			}
			next := timespec.NextOccurrence(time.Now(), c)
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(map[string]string{
					"input": raw,
					"time":  c.String(),
					"next":  next.Format(time.RFC3339),
				})
			}
			_, err = fmt.Fprintf(out, "%s (next: %s)\n", c.String(), next.Format("2006-01-02 15:04"))
			return err
		},
	}
}
