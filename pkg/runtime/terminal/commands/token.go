package commands

import (
	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/spf13/cobra"
)

type TokenCmd struct {
	env      Env
	subject  string
	role     string
	clientID string
}

func NewTokenCmd(env Env) *cobra.Command {
	tc := &TokenCmd{env: env}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage web API tokens",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for the web API",
		RunE:  tc.issue,
	}
	issue.Flags().StringVar(&tc.subject, "subject", "", "Name of the token holder")
	issue.Flags().StringVar(&tc.role, "role", string(auth.RoleViewer), "Role: admin, auditor, analyst or viewer")
	issue.Flags().StringVar(&tc.clientID, "client", "", "Client the token is bound to (not needed for admin)")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

func (tc *TokenCmd) issue(_ *cobra.Command, _ []string) error {
	role, err := auth.ParseRole(tc.role)
	if err != nil {
		return err
	}

	cfg, err := tc.env.Config()
	if err != nil {
		return err
	}
	verifier, err := auth.NewTokenVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	token, err := verifier.Issue(auth.Principal{Subject: tc.subject, Role: role, ClientID: tc.clientID})
	if err != nil {
		return err
	}
	return tc.env.Reporter().Text(token)
}
