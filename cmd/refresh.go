package cmd

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the session using the refresh token",
	Long: `Exchanges the stored refresh token for a new session.
If the refresh fails the session is ended and you need to log in again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}
		if m.Bundle() == nil {
			log.Info().Msgf("%s not logged in", redCross)
			return BeQuietError{}
		}

		if !m.Refresh(cmd.Context()) {
			log.Error().Msgf("%s could not refresh the session, please log in again", redCross)
			return BeQuietError{}
		}

		b := m.Bundle()
		logSuccess("session of %s renewed, usable for %s",
			bold(b.Username),
			b.ExpiresWithin(m.Buffer(), time.Now()).Round(time.Second))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
