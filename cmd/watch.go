package cmd

import (
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/events"
)

var watchStatusEvery time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session under observation and print transitions",
	Long: `Runs until interrupted. While running, the session is re-validated on the
configured monitor interval, changes made by other taskdeck processes to the
credential file are picked up, and every login and logout is printed.`,
	Example: `  taskdeck watch --status-every 5m`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := f.Manager(ctx)
		if err != nil {
			return err
		}
		if err := f.Watch(ctx, m); err != nil {
			return err
		}

		sub := m.Subscribe()
		defer sub.Unsubscribe()

		if user, ok := m.CurrentUser(); ok {
			log.Info().Msgf("watching session of %s (phase %s)", bold(user.Username), m.Phase())
		} else {
			log.Info().Msg("watching, not logged in")
		}

		var statusTick <-chan time.Time
		if watchStatusEvery > 0 {
			ticker := time.NewTicker(watchStatusEvery)
			defer ticker.Stop()
			statusTick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped watching")
				return nil
			case e, ok := <-sub.Events():
				if !ok {
					return nil
				}
				printEvent(e)
			case <-statusTick:
				if m.Bundle() == nil {
					continue
				}
				if _, err := m.CheckStatus(ctx); err != nil {
					log.Warn().Err(err).Msg("could not check session status")
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchStatusEvery, "status-every", 0,
		"Also ask the server whether it accepts the session at this interval (0 disables)")
}

func printEvent(e events.Event) {
	at := faint(e.At.Local().Format(time.TimeOnly))
	switch e.Kind {
	case events.KindLoggedIn:
		log.Info().Msgf("%s %s %s %s", at, color.GreenString("logged in"), bold(e.Username),
			faint(strings.Join(e.Authorities, ", ")))
	case events.KindLoggedOut:
		log.Info().Msgf("%s %s %s", at, color.RedString("logged out"), faint("("+string(e.Reason)+")"))
	}
}
