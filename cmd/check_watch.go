package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/internal/config"
	"github.com/darmiel/taskdeck/internal/uniqueness"
)

var checkWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check values as they are typed",
	Long: `Reads lines from stdin and checks them with the configured debounce.
A line is either "username <value>" or "email <value>"; a bare value is checked
as a username. Only the last value entered within the debounce window per
field is sent to the server.`,
	Example: `  taskdeck check watch --debounce 500ms`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.Config()
		if err != nil {
			return err
		}
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}

		checker := uniqueness.New(m, func(r uniqueness.Result) {
			fmt.Printf("%s %s: %s\n", faint(string(r.Field)), bold(r.Value), describeResult(r))
		},
			uniqueness.WithDebounce(cfg.Check.Debounce),
			uniqueness.WithRate(cfg.Check.Rate),
		)
		defer checker.Close()

		log.Info().Msgf("checking input with a debounce of %s, end with Ctrl-D", cfg.Check.Debounce)

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					checker.Wait()
					return nil
				}
				field, value := parseCheckLine(line)
				if err := checker.Submit(field, value); err != nil {
					log.Warn().Err(err).Msg("skipping input")
				}
			}
		}
	},
}

func init() {
	checkCmd.AddCommand(checkWatchCmd)

	checkWatchCmd.Flags().Duration("debounce", 0, "Wait this long after the last input before checking")
	bindFlag(checkWatchCmd.Flags(), "debounce", config.CheckDebounceKey)
}

func parseCheckLine(line string) (uniqueness.Field, string) {
	line = strings.TrimSpace(line)
	prefix, rest, found := strings.Cut(line, " ")
	if found {
		switch uniqueness.Field(prefix) {
		case uniqueness.FieldUsername, uniqueness.FieldEmail:
			return uniqueness.Field(prefix), strings.TrimSpace(rest)
		}
	}
	return uniqueness.FieldUsername, line
}
