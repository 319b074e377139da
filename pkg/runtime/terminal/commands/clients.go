package commands

import (
	"github.com/spf13/cobra"
)

type ClientsCmd struct {
	env Env
}

func NewClientsCmd(env Env) *cobra.Command {
	cc := &ClientsCmd{env: env}

	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect the client registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered clients and their accounts",
		RunE:  cc.list,
	})
	return cmd
}

func (cc *ClientsCmd) list(cmd *cobra.Command, _ []string) error {
	a, ctx, err := open(cmd.Context(), cc.env)
	if err != nil {
		return err
	}

	clients, err := a.Clients.ListClients(ctx)
	if err != nil {
		return err
	}
	return cc.env.Reporter().Clients(clients)
}
