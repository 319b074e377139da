package commands

import (
	"github.com/spf13/cobra"
)

type InventoryCmd struct {
	env      Env
	clientID string
}

func NewInventoryCmd(env Env) *cobra.Command {
	ic := &InventoryCmd{env: env}

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage the resource inventory",
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Scan a client's account and refresh its inventory",
		RunE:  ic.sweep,
	}
	sweep.Flags().StringVar(&ic.clientID, "client", "", "Client whose account is swept")
	_ = sweep.MarkFlagRequired("client")

	cmd.AddCommand(sweep)
	return cmd
}

func (ic *InventoryCmd) sweep(cmd *cobra.Command, _ []string) error {
	a, ctx, err := open(cmd.Context(), ic.env)
	if err != nil {
		return err
	}

	client, err := a.Clients.GetClient(ctx, ic.clientID)
	if err != nil {
		return err
	}

	result, err := a.Orchestrator.SweepInventory(ctx, client.ID, client.Account)
	if err != nil {
		return err
	}
	return ic.env.Reporter().Sweep(result)
}
