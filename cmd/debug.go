package cmd

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/bundle"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging commands",
	Long:  `Commands for debugging Taskdeck sessions`,
}

var debugBundleShowSecrets bool

var debugBundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Dump the stored credential bundle",
	Long: `Loads the stored credential record and dumps it together with the result of
the structural and temporal checks. Tokens are redacted unless --show-secrets is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.Config()
		if err != nil {
			return err
		}
		store, err := f.Store(cmd.Context())
		if err != nil {
			return err
		}

		b, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		if b == nil {
			log.Info().Msgf("no usable record in %s", cfg.Store.Path)
			return nil
		}

		if !debugBundleShowSecrets {
			b.AccessToken = redact(b.AccessToken)
			b.RefreshToken = redact(b.RefreshToken)
		}
		fmt.Println(spew.Sdump(b))

		if err := bundle.Validate(b, cfg.Session.Buffer, time.Now()); err != nil {
			log.Warn().Msgf("%s record is not usable: %v", redCross, err)
		} else {
			logSuccess("record is usable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugBundleCmd)

	debugBundleCmd.Flags().BoolVar(&debugBundleShowSecrets, "show-secrets", false, "Do not redact tokens")
}

func redact(token string) string {
	if token == "" {
		return ""
	}
	return truncate(token, 8) + fmt.Sprintf(" (%d chars, fingerprint %s)", len(token), bundle.Fingerprint(token))
}
