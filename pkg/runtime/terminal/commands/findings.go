package commands

import (
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/spf13/cobra"
)

type FindingsCmd struct {
	env Env

	clientID      string
	accountID     string
	findingTypes  []string
	resourceTypes []string
	severity      string
	resourceID    string

	findingID string
	actor     string
}

func NewFindingsCmd(env Env) *cobra.Command {
	fc := &FindingsCmd{env: env}

	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Inspect and resolve findings",
	}
	cmd.PersistentFlags().StringVar(&fc.clientID, "client", "", "Client owning the findings")
	_ = cmd.MarkPersistentFlagRequired("client")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active findings",
		RunE:  fc.list,
	}
	list.Flags().StringVar(&fc.accountID, "account", "", "Only findings of this account")
	list.Flags().StringSliceVar(&fc.findingTypes, "type", nil, "Finding types to include")
	list.Flags().StringSliceVar(&fc.resourceTypes, "resource-type", nil, "Resource types to include")
	list.Flags().StringVar(&fc.severity, "severity", "", "Only findings of this severity (LOW, MEDIUM, HIGH)")
	list.Flags().StringVar(&fc.resourceID, "resource", "", "Only findings of this resource")

	resolve := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a finding manually",
		RunE:  fc.resolve,
	}
	resolve.Flags().StringVar(&fc.findingID, "id", "", "Finding to resolve")
	resolve.Flags().StringVar(&fc.actor, "actor", "", "Who resolves the finding")
	_ = resolve.MarkFlagRequired("id")
	_ = resolve.MarkFlagRequired("actor")

	cmd.AddCommand(list, resolve)
	return cmd
}

func (fc *FindingsCmd) filter() (domain.FindingFilter, error) {
	filter := domain.FindingFilter{
		AccountID:    fc.accountID,
		FindingTypes: fc.findingTypes,
		ResourceID:   fc.resourceID,
	}
	for _, raw := range fc.resourceTypes {
		rt, err := domain.ParseResourceType(raw)
		if err != nil {
			return domain.FindingFilter{}, err
		}
		filter.ResourceTypes = append(filter.ResourceTypes, rt)
	}
	if fc.severity != "" {
		severity, err := domain.ParseSeverity(fc.severity)
		if err != nil {
			return domain.FindingFilter{}, err
		}
		filter.Severity = &severity
	}
	return filter, nil
}

func (fc *FindingsCmd) list(cmd *cobra.Command, _ []string) error {
	filter, err := fc.filter()
	if err != nil {
		return err
	}

	a, ctx, err := open(cmd.Context(), fc.env)
	if err != nil {
		return err
	}

	findings, err := a.Engine.ListActiveFindings(ctx, fc.clientID, filter)
	if err != nil {
		return err
	}
	return fc.env.Reporter().Findings(findings)
}

func (fc *FindingsCmd) resolve(cmd *cobra.Command, _ []string) error {
	a, ctx, err := open(cmd.Context(), fc.env)
	if err != nil {
		return err
	}

	finding, err := a.Engine.ResolveFinding(ctx, fc.clientID, fc.findingID, fc.actor)
	if err != nil {
		return err
	}
	return fc.env.Reporter().Finding(finding)
}
