package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
)

type Connector struct {
	settings Settings
}

func NewConnector(settings Settings) *Connector {
	return &Connector{settings: settings}
}

// Connect opens a session for the account and registers one scanner per
// resource type and region. Buckets are listed once through the global API.
func (c *Connector) Connect(ctx context.Context, account domain.Account) (*scanner.Registry, error) {
	cfg, err := LoadConfig(ctx, account, c.settings)
	if err != nil {
		return nil, err
	}

	regions := account.Regions
	if len(regions) == 0 {
		regions = []string{cfg.Region}
	}

	var scanners []scanner.Scanner
	for _, region := range regions {
		regional := cfg.Copy()
		regional.Region = region

		ec2Client := ec2.NewFromConfig(regional)
		scanners = append(scanners,
			NewInstanceScanner(ec2Client, region),
			NewVolumeScanner(ec2Client, region),
			NewSnapshotScanner(ec2Client, region),
			NewAddressScanner(ec2Client, region),
			NewLoadBalancerScanner(elasticloadbalancingv2.NewFromConfig(regional), region),
			NewDBSnapshotScanner(rds.NewFromConfig(regional), region),
		)
	}
	scanners = append(scanners, NewBucketScanner(s3.NewFromConfig(cfg)))

	reg, err := scanner.NewRegistry(scanners...)
	if err != nil {
		return nil, err
	}
	return reg.WithCallTimeout(c.settings.CallTimeout), nil
}
