package cmd

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Ask the server whether the session is still accepted",
	Long: `Sends the stored access token to the server. If the server rejects it,
for example because the session was ended on another device, the local
session is removed as well.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}

		user, _ := m.CurrentUser()
		ok, err := m.CheckStatus(cmd.Context())
		switch {
		case errors.Is(err, session.ErrNotLoggedIn):
			log.Info().Msgf("%s not logged in", redCross)
			return BeQuietError{}
		case err != nil:
			return logError(err, "could not check session status")
		case !ok:
			log.Warn().Msgf("%s the server no longer accepts the session of %s, logged out", redCross, bold(user.Username))
			return BeQuietError{}
		}

		logSuccess("session of %s is active", bold(user.Username))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
