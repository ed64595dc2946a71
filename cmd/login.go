package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/pkg/client"
)

var (
	loginUsername      string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to a Taskdeck server",
	Long: `Exchanges username and password for a session on this device.
The session is saved locally so that later commands are authenticated.
The password is prompted for unless --password-stdin is given.`,
	Example: `  taskdeck login -u admin
  echo "$PASSWORD" | taskdeck login -u admin --password-stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}
		if user, ok := m.CurrentUser(); ok {
			log.Info().Msgf("already logged in as %s, replacing session", bold(user.Username))
		}

		username := loginUsername
		if username == "" {
			if username, err = promptLine("Username"); err != nil {
				return err
			}
		}

		var password string
		if loginPasswordStdin {
			data, err := stdin.ReadString('\n')
			if err != nil && data == "" {
				return fmt.Errorf("reading password from stdin: %w", err)
			}
			password = strings.TrimRight(data, "\r\n")
		} else if password, err = promptSecret("Password"); err != nil {
			return err
		}

		user, err := m.Login(cmd.Context(), username, password)
		if err != nil {
			switch client.KindOf(err) {
			case client.KindInvalidCredentials:
				return logError(err, "invalid username or password")
			case client.KindUnreachable:
				return logError(err, "server is unreachable")
			default:
				return logError(err, "login failed")
			}
		}

		logSuccess("logged in as %s %s", bold(user.Username), faint(strings.Join(user.Authorities, ", ")))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", os.Getenv("TASKDECK_USERNAME"), "Username to sign in with")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
}
