package cmd

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/uniqueness"
	"github.com/darmiel/taskdeck/pkg/client"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether usernames or email addresses are still available",
}

var checkUsernameCmd = &cobra.Command{
	Use:     "username <name>...",
	Short:   "Check whether usernames are available",
	Example: `  taskdeck check username alice bob`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), uniqueness.FieldUsername, args)
	},
}

var checkEmailCmd = &cobra.Command{
	Use:     "email <address>...",
	Short:   "Check whether email addresses are available",
	Example: `  taskdeck check email alice@example.com`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), uniqueness.FieldEmail, args)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.AddCommand(checkUsernameCmd)
	checkCmd.AddCommand(checkEmailCmd)
}

func runCheck(ctx context.Context, field uniqueness.Field, values []string) error {
	m, err := f.Manager(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{string(field), "Result"})

	failed := false
	for _, value := range values {
		var availability client.Availability
		switch field {
		case uniqueness.FieldUsername:
			availability, err = m.CheckUsername(ctx, value)
		case uniqueness.FieldEmail:
			availability, err = m.CheckEmail(ctx, value)
		}
		if err != nil && !client.IsValidationError(err) {
			return logError(err, "could not check "+string(field))
		}

		result := uniqueness.Result{Field: field, Value: value, Availability: availability, Err: err}
		if result.Availability != client.Available {
			failed = true
		}
		t.AppendRow(table.Row{bold(value), describeResult(result)})
	}

	applyTableFormat(t)
	t.Render()
	if failed {
		return BeQuietError{}
	}
	return nil
}

func describeResult(r uniqueness.Result) string {
	switch {
	case r.Err != nil:
		return redCross + " " + color.YellowString(r.Err.Error())
	case r.Availability == client.Taken:
		return redCross + " taken"
	default:
		return greenCheck + " available"
	}
}
