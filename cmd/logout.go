package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session on this device",
	Long: `Removes the stored session. The server is asked to invalidate the token as well,
but the local session is removed even if the server cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.LocalManager(cmd.Context())
		if err != nil {
			return err
		}

		user, ok := m.CurrentUser()
		if !ok && m.Bundle() == nil {
			log.Info().Msg("not logged in")
			return nil
		}

		m.Logout(cmd.Context())
		if ok {
			logSuccess("logged out %s", bold(user.Username))
		} else {
			logSuccess("removed expired session")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
