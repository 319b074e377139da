package commands

import (
	"errors"
	"fmt"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/spf13/cobra"
)

type AuditCmd struct {
	env      Env
	clientID string
	all      bool
}

func NewAuditCmd(env Env) *cobra.Command {
	ac := &AuditCmd{env: env}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run waste audits",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Audit the cloud account of a client",
		RunE:  ac.run,
	}
	run.Flags().StringVar(&ac.clientID, "client", "", "Client to audit")
	run.Flags().BoolVar(&ac.all, "all", false, "Audit every registered client")
	run.MarkFlagsOneRequired("client", "all")
	run.MarkFlagsMutuallyExclusive("client", "all")

	cmd.AddCommand(run)
	return cmd
}

func (ac *AuditCmd) run(cmd *cobra.Command, _ []string) error {
	a, ctx, err := open(cmd.Context(), ac.env)
	if err != nil {
		return err
	}

	var clients []domain.Client
	if ac.all {
		clients, err = a.Clients.ListClients(ctx)
	} else {
		var client domain.Client
		client, err = a.Clients.GetClient(ctx, ac.clientID)
		clients = []domain.Client{client}
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, client := range clients {
		result, err := a.Orchestrator.RunAudit(ctx, client.ID, client.Account)
		if err != nil {
			return fmt.Errorf("audit of %s: %w", client.ID, err)
		}
		if err := ac.env.Reporter().Audit(result); err != nil {
			return err
		}
		if result.Status == domain.AuditStatusError {
			errs = append(errs, fmt.Errorf("audit of %s failed: %s", client.ID, result.Error))
		}
	}
	return errors.Join(errs...)
}
