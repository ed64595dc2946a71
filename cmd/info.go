package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/buildinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the Taskdeck installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Debug().Msg("Showing local build info...")
		info := buildinfo.GetBuildInfo()
		printInfo(&info)

		cfg, err := f.Config()
		if err != nil {
			return err
		}
		m, err := f.LocalManager(cmd.Context())
		if err != nil {
			return err
		}

		server := cfg.Addr
		if server == "" {
			server = faint("(not configured)")
		}
		fmt.Println(bold("\n── Session ──"))
		fmt.Printf("  %s:      %s\n", faint("Server"), server)
		fmt.Printf("  %s:       %s (%s)\n", faint("Store"), cfg.Store.Path, cfg.Store.Type)
		fmt.Printf("  %s:       %s\n", faint("Phase"), m.Phase())
		if user, ok := m.CurrentUser(); ok {
			fmt.Printf("  %s:        %s\n", faint("User"), bold(user.Username))
		}
		status := m.MonitorStatus()
		monitor := "disarmed"
		if status.Armed {
			monitor = fmt.Sprintf("armed, next check in %s", time.Until(status.NextRun).Round(time.Second))
		}
		fmt.Printf("  %s:     %s\n", faint("Monitor"), monitor)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(info *buildinfo.Info) {
	fmt.Println(bold("\n── Taskdeck Build Information ──"))
	fmt.Printf("  %s:    %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:     %s\n", faint("Commit"), info.CommitHash)
	fmt.Printf("  %s:      %s\n", faint("About"), info.About)
}
