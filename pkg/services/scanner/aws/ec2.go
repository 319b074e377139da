package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
)

type instanceScanner struct {
	client ec2.DescribeInstancesAPIClient
	region string
}

func NewInstanceScanner(client ec2.DescribeInstancesAPIClient, region string) scanner.Scanner {
	return &instanceScanner{client: client, region: region}
}

func (s *instanceScanner) Name() string                      { return "ec2:instances" }
func (s *instanceScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeCompute }
func (s *instanceScanner) Region() string                    { return s.region }

func (s *instanceScanner) Scan(ctx context.Context) (scanner.Result, error) {
	var res scanner.Result
	paginator := ec2.NewDescribeInstancesPaginator(s.client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return scanner.Result{}, fmt.Errorf("failed to describe EC2 instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				r, err := instanceResource(inst, s.region)
				if errors.Is(err, domain.ErrMalformedResource) {
					res.Skipped++
					continue
				}
				res.Resources = append(res.Resources, r)
			}
		}
	}
	return res, nil
}

func instanceResource(inst ec2types.Instance, region string) (domain.Resource, error) {
	id := awssdk.ToString(inst.InstanceId)
	if id == "" || inst.State == nil {
		return domain.Resource{}, fmt.Errorf("instance without id or state: %w", domain.ErrMalformedResource)
	}

	metadata := map[string]any{
		domain.MetadataInstanceType: string(inst.InstanceType),
	}
	if inst.LaunchTime != nil {
		metadata["launch_time"] = inst.LaunchTime.UTC()
	}

	return domain.Resource{
		ResourceID:   id,
		ResourceType: domain.ResourceTypeCompute,
		Region:       region,
		State:        string(inst.State.Name),
		Tags:         ec2Tags(inst.Tags),
		Metadata:     metadata,
	}, nil
}

type volumeScanner struct {
	client ec2.DescribeVolumesAPIClient
	region string
}

func NewVolumeScanner(client ec2.DescribeVolumesAPIClient, region string) scanner.Scanner {
	return &volumeScanner{client: client, region: region}
}

func (s *volumeScanner) Name() string                      { return "ec2:volumes" }
func (s *volumeScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeVolume }
func (s *volumeScanner) Region() string                    { return s.region }

func (s *volumeScanner) Scan(ctx context.Context) (scanner.Result, error) {
	var res scanner.Result
	paginator := ec2.NewDescribeVolumesPaginator(s.client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return scanner.Result{}, fmt.Errorf("failed to describe EBS volumes: %w", err)
		}
		for _, vol := range page.Volumes {
			id := awssdk.ToString(vol.VolumeId)
			if id == "" || vol.State == "" {
				res.Skipped++
				continue
			}
			res.Resources = append(res.Resources, domain.Resource{
				ResourceID:   id,
				ResourceType: domain.ResourceTypeVolume,
				Region:       s.region,
				State:        string(vol.State),
				Tags:         ec2Tags(vol.Tags),
				Metadata: map[string]any{
					domain.MetadataSizeGB: int64(awssdk.ToInt32(vol.Size)),
					"volume_type":         string(vol.VolumeType),
					"attachment_count":    len(vol.Attachments),
				},
			})
		}
	}
	return res, nil
}

type snapshotScanner struct {
	client ec2.DescribeSnapshotsAPIClient
	region string
}

func NewSnapshotScanner(client ec2.DescribeSnapshotsAPIClient, region string) scanner.Scanner {
	return &snapshotScanner{client: client, region: region}
}

func (s *snapshotScanner) Name() string                      { return "ec2:snapshots" }
func (s *snapshotScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeSnapshot }
func (s *snapshotScanner) Region() string                    { return s.region }

// Scan only lists snapshots owned by the account; public and shared snapshots
// are not the account's cost.
func (s *snapshotScanner) Scan(ctx context.Context) (scanner.Result, error) {
	var res scanner.Result
	paginator := ec2.NewDescribeSnapshotsPaginator(s.client, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return scanner.Result{}, fmt.Errorf("failed to describe EBS snapshots: %w", err)
		}
		for _, snap := range page.Snapshots {
			id := awssdk.ToString(snap.SnapshotId)
			if id == "" {
				res.Skipped++
				continue
			}
			metadata := map[string]any{
				domain.MetadataSizeGB: int64(awssdk.ToInt32(snap.VolumeSize)),
				domain.MetadataSource: "ebs",
				"volume_id":           awssdk.ToString(snap.VolumeId),
			}
			if snap.StartTime != nil {
				metadata[domain.MetadataStartTime] = snap.StartTime.UTC()
			}
			res.Resources = append(res.Resources, domain.Resource{
				ResourceID:   id,
				ResourceType: domain.ResourceTypeSnapshot,
				Region:       s.region,
				State:        string(snap.State),
				Tags:         ec2Tags(snap.Tags),
				Metadata:     metadata,
			})
		}
	}
	return res, nil
}

type describeAddressesAPI interface {
	DescribeAddresses(
		ctx context.Context,
		params *ec2.DescribeAddressesInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeAddressesOutput, error)
}

type addressScanner struct {
	client describeAddressesAPI
	region string
}

func NewAddressScanner(client describeAddressesAPI, region string) scanner.Scanner {
	return &addressScanner{client: client, region: region}
}

func (s *addressScanner) Name() string                      { return "ec2:addresses" }
func (s *addressScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeElasticIP }
func (s *addressScanner) Region() string                    { return s.region }

func (s *addressScanner) Scan(ctx context.Context) (scanner.Result, error) {
	out, err := s.client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return scanner.Result{}, fmt.Errorf("failed to describe elastic IPs: %w", err)
	}

	var res scanner.Result
	for _, addr := range out.Addresses {
		// EC2-Classic addresses have no allocation id; the public IP identifies them.
		id := awssdk.ToString(addr.AllocationId)
		if id == "" {
			id = awssdk.ToString(addr.PublicIp)
		}
		if id == "" {
			res.Skipped++
			continue
		}

		associationID := awssdk.ToString(addr.AssociationId)
		state := "associated"
		if associationID == "" {
			state = "unassociated"
		}

		res.Resources = append(res.Resources, domain.Resource{
			ResourceID:   id,
			ResourceType: domain.ResourceTypeElasticIP,
			Region:       s.region,
			State:        state,
			Tags:         ec2Tags(addr.Tags),
			Metadata: map[string]any{
				domain.MetadataAssociationID: associationID,
				"public_ip":                  awssdk.ToString(addr.PublicIp),
				"instance_id":                awssdk.ToString(addr.InstanceId),
			},
		})
	}
	return res, nil
}

func ec2Tags(tags []ec2types.Tag) map[string]string {
	res := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key == nil {
			continue
		}
		res[*t.Key] = awssdk.ToString(t.Value)
	}
	return res
}
