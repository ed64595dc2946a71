package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/session"
)

var whoamiOutput string

type whoamiView struct {
	Username    string        `json:"username" yaml:"username"`
	Authorities []string      `json:"authorities" yaml:"authorities"`
	Phase       session.Phase `json:"phase" yaml:"phase"`
	ExpiresAt   time.Time     `json:"expires_at" yaml:"expires_at"`
	UsableFor   string        `json:"usable_for" yaml:"usable_for"`
	Refreshable bool          `json:"refreshable" yaml:"refreshable"`
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user of the current session",
	Long: `Prints the identity of the stored session. This does not contact the server;
use 'taskdeck status' to ask the server whether it still accepts the session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.LocalManager(cmd.Context())
		if err != nil {
			return err
		}

		user, ok := m.CurrentUser()
		if !ok {
			log.Info().Msgf("%s not logged in", redCross)
			return BeQuietError{}
		}
		b := m.Bundle()

		view := whoamiView{
			Username:    user.Username,
			Authorities: user.Authorities,
			Phase:       m.Phase(),
			ExpiresAt:   b.ExpiresAt,
			UsableFor:   b.ExpiresWithin(m.Buffer(), time.Now()).Round(time.Second).String(),
			Refreshable: b.RefreshToken != "",
		}
		if done, err := printStructured(whoamiOutput, view); done {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRow(table.Row{faint("Username"), bold(view.Username)})
		t.AppendRow(table.Row{faint("Authorities"), strings.Join(view.Authorities, ", ")})
		t.AppendRow(table.Row{faint("Phase"), color.GreenString(string(view.Phase))})
		t.AppendRow(table.Row{faint("Expires"), view.ExpiresAt.Local().Format(time.RFC3339)})
		t.AppendRow(table.Row{faint("Usable for"), view.UsableFor})
		t.AppendRow(table.Row{faint("Refreshable"), view.Refreshable})
		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)

	whoamiCmd.Flags().StringVarP(&whoamiOutput, "output", "o", outputTable, "Output format (table, yaml, json)")
}
