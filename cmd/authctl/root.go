package main

import (
	"io"

	"github.com/spf13/cobra"
)

// cli carries state shared by commands of one invocation
type cli struct {
	cfg    *Config
	out    io.Writer
	errOut io.Writer

	// Built in PersistentPreRunE, after flags are parsed
	app *App
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "authctl",
		Short: "Command line client of the authaudit REST API",
		Long: `authctl signs in to the authaudit REST API and calls it on behalf of the
signed in user: account settings, demo items and the admin audit log.

Tokens are kept in memory only, so commands that need a session sign in
with the configured email and password on every run.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			app, err := NewApp(c.cfg, c.out, c.errOut)
			if err != nil {
				return err
			}
			c.app = app
			return nil
		},
		SilenceUsage: true,
	}

	root.SetOut(c.out)
	root.SetErr(c.errOut)
	c.cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newMethodsCmd(c),
		newRegisterCmd(c),
		newLoginCmd(c),
		newMeCmd(c),
		newExportCmd(c),
		newDeleteAccountCmd(c),
		newCodeCmd(c),
		newOAuthCmd(c),
		newDemoCmd(c),
		newAuditCmd(c),
		newUsersCmd(c),
	)

	return root
}

// withSession is a persistent pre-run of command groups that need a signed in user
func (c *cli) withSession(cmd *cobra.Command, args []string) error {
	// Cobra runs only the closest persistent pre-run, so the root one is called explicitly
	if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
		return err
	}
	return c.app.signIn(cmd.Context())
}
