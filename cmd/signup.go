package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/darmiel/taskdeck/pkg/client"
)

var signupReq client.SignupRequest

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Registers a new account. Username, email and password are checked locally
before anything is sent. Signing up does not log you in.`,
	Example: `  taskdeck signup -u alice -e alice@example.com --invite ABC123`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}

		req := signupReq
		if req.Username == "" {
			if req.Username, err = promptLine("Username"); err != nil {
				return err
			}
		}
		if req.Email == "" {
			if req.Email, err = promptLine("Email"); err != nil {
				return err
			}
		}
		if req.Password, err = promptSecret("Password"); err != nil {
			return err
		}
		if req.ConfirmPassword, err = promptSecret("Confirm password"); err != nil {
			return err
		}

		if err := m.Signup(cmd.Context(), req); err != nil {
			var vErr *client.ValidationError
			switch {
			case errors.As(err, &vErr):
				return logError(err, "invalid "+vErr.Field)
			case client.KindOf(err) == client.KindConflict:
				return logError(err, "username or email is already registered")
			default:
				return logError(err, "signup failed")
			}
		}

		logSuccess("account %s created, use %s to sign in", bold(req.Username), bold("taskdeck login"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signupCmd)

	signupCmd.Flags().StringVarP(&signupReq.Username, "username", "u", "", "Username of the new account")
	signupCmd.Flags().StringVarP(&signupReq.Email, "email", "e", "", "Email address of the new account")
	signupCmd.Flags().StringVar(&signupReq.InviteCode, "invite", "", "Invite code, if the server requires one")
}
