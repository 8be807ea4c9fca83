package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkiryanov/authaudit/internal/models"
)

func newMethodsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "Show sign in methods enabled on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.auth.FetchAuthMethods(cmd.Context()); err != nil {
				return err
			}

			snap := c.app.auth.Snapshot()
			return c.app.print(models.AuthMethods{Methods: snap.Methods, OAuthProviders: snap.OAuthProviders})
		},
	}
}

func newRegisterCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account with the configured email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Email == "" || c.cfg.Password == "" {
				return errNoCredentials
			}

			u, err := c.app.auth.Register(cmd.Context(), c.cfg.Email, c.cfg.Password)
			if err != nil {
				return err
			}
			return c.app.print(u)
		},
	}
}

type loginOutput struct {
	User      *models.User `json:"user"`
	Subject   string       `json:"subject"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func newLoginCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check the credentials and show the issued access token claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.signIn(cmd.Context()); err != nil {
				return err
			}

			info, err := c.app.auth.TokenInfo()
			if err != nil {
				return err
			}
			return c.app.print(loginOutput{User: c.app.auth.User(), Subject: info.Subject, ExpiresAt: info.ExpiresAt})
		},
	}
}

func newMeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.signIn(cmd.Context()); err != nil {
				return err
			}
			return c.app.print(c.app.auth.User())
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export personal data of the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.signIn(cmd.Context()); err != nil {
				return err
			}

			data, err := c.app.api.Auth.ExportData(cmd.Context())
			if err != nil {
				return err
			}
			return c.app.print(data)
		},
	}
}

func newDeleteAccountCmd(c *cli) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the signed in account with all its data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("account deletion is permanent, pass --yes to confirm")
			}
			if err := c.app.signIn(cmd.Context()); err != nil {
				return err
			}

			if err := c.app.api.Auth.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			c.app.auth.Reset()

			_, err := fmt.Fprintf(c.out, "account %s deleted\n", c.cfg.Email)
			return err
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deletion")
	return cmd
}

func newCodeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Sign in with a one-time code sent by email",
	}

	var email string
	request := &cobra.Command{
		Use:   "request",
		Short: "Ask the server to send a code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.app.auth.RequestCode(cmd.Context(), firstSet(email, c.cfg.Email))
			if err != nil {
				return err
			}
			return c.app.print(resp)
		},
	}
	request.Flags().StringVar(&email, "to", "", "Email to send the code to (defaults to --email)")

	var verifyEmail, code string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Sign in with the received code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.auth.LoginWithCode(cmd.Context(), firstSet(verifyEmail, c.cfg.Email), code); err != nil {
				return err
			}
			return c.app.print(c.app.auth.User())
		},
	}
	verify.Flags().StringVar(&verifyEmail, "to", "", "Email the code was sent to (defaults to --email)")
	verify.Flags().StringVar(&code, "code", "", "Received code")
	_ = verify.MarkFlagRequired("code")

	cmd.AddCommand(request, verify)
	return cmd
}

func newOAuthCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in with an OAuth provider",
	}

	var provider string
	authorize := &cobra.Command{
		Use:   "url",
		Short: "Print the provider page to open in a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := c.app.auth.StartOAuth(cmd.Context(), provider)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, u)
			return err
		},
	}

	var code, state string
	callback := &cobra.Command{
		Use:   "callback",
		Short: "Complete sign in with the code and state the provider redirected with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.auth.HandleOAuthCallback(cmd.Context(), provider, code, state); err != nil {
				return err
			}
			return c.app.print(c.app.auth.User())
		},
	}
	callback.Flags().StringVar(&code, "code", "", "Authorization code")
	callback.Flags().StringVar(&state, "state", "", "State returned by the provider")
	_ = callback.MarkFlagRequired("code")
	_ = callback.MarkFlagRequired("state")

	cmd.PersistentFlags().StringVar(&provider, "provider", "entra", "OAuth provider name")
	cmd.AddCommand(authorize, callback)
	return cmd
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
