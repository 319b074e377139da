package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
)

type dbSnapshotScanner struct {
	client rds.DescribeDBSnapshotsAPIClient
	region string
}

// NewDBSnapshotScanner reports RDS DB snapshots as SNAPSHOT resources next to
// the EBS ones.
func NewDBSnapshotScanner(client rds.DescribeDBSnapshotsAPIClient, region string) scanner.Scanner {
	return &dbSnapshotScanner{client: client, region: region}
}

func (s *dbSnapshotScanner) Name() string                      { return "rds:db-snapshots" }
func (s *dbSnapshotScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeSnapshot }
func (s *dbSnapshotScanner) Region() string                    { return s.region }

func (s *dbSnapshotScanner) Scan(ctx context.Context) (scanner.Result, error) {
	var res scanner.Result
	paginator := rds.NewDescribeDBSnapshotsPaginator(s.client, &rds.DescribeDBSnapshotsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return scanner.Result{}, fmt.Errorf("failed to describe RDS snapshots: %w", err)
		}
		for _, snap := range page.DBSnapshots {
			id := awssdk.ToString(snap.DBSnapshotArn)
			if id == "" {
				id = awssdk.ToString(snap.DBSnapshotIdentifier)
			}
			if id == "" {
				res.Skipped++
				continue
			}

			metadata := map[string]any{
				domain.MetadataSizeGB: int64(awssdk.ToInt32(snap.AllocatedStorage)),
				domain.MetadataSource: "rds",
				domain.MetadataName:   awssdk.ToString(snap.DBSnapshotIdentifier),
				"snapshot_type":       awssdk.ToString(snap.SnapshotType),
				"engine":              awssdk.ToString(snap.Engine),
			}
			if snap.SnapshotCreateTime != nil {
				metadata[domain.MetadataStartTime] = snap.SnapshotCreateTime.UTC()
			}

			tags := make(map[string]string, len(snap.TagList))
			for _, t := range snap.TagList {
				if t.Key != nil {
					tags[*t.Key] = awssdk.ToString(t.Value)
				}
			}

			res.Resources = append(res.Resources, domain.Resource{
				ResourceID:   id,
				ResourceType: domain.ResourceTypeSnapshot,
				Region:       s.region,
				State:        awssdk.ToString(snap.Status),
				Tags:         tags,
				Metadata:     metadata,
			})
		}
	}
	return res, nil
}
