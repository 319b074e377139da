package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
)

// describeTagsBatch is the DescribeTags limit on resource ARNs per call.
const describeTagsBatch = 20

type loadBalancerAPI interface {
	elbv2.DescribeLoadBalancersAPIClient
	elbv2.DescribeTargetGroupsAPIClient
	DescribeTags(
		ctx context.Context,
		params *elbv2.DescribeTagsInput,
		optFns ...func(*elbv2.Options),
	) (*elbv2.DescribeTagsOutput, error)
}

type loadBalancerScanner struct {
	client loadBalancerAPI
	region string
}

func NewLoadBalancerScanner(client loadBalancerAPI, region string) scanner.Scanner {
	return &loadBalancerScanner{client: client, region: region}
}

func (s *loadBalancerScanner) Name() string                      { return "elbv2:load-balancers" }
func (s *loadBalancerScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeLoadBalancer }
func (s *loadBalancerScanner) Region() string                    { return s.region }

func (s *loadBalancerScanner) Scan(ctx context.Context) (scanner.Result, error) {
	var (
		res scanner.Result
		lbs []elbtypes.LoadBalancer
	)

	paginator := elbv2.NewDescribeLoadBalancersPaginator(s.client, &elbv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return scanner.Result{}, fmt.Errorf("failed to describe load balancers: %w", err)
		}
		for _, lb := range page.LoadBalancers {
			if awssdk.ToString(lb.LoadBalancerArn) == "" {
				res.Skipped++
				continue
			}
			lbs = append(lbs, lb)
		}
	}

	tags, err := s.tags(ctx, lbs)
	if err != nil {
		return scanner.Result{}, err
	}

	for _, lb := range lbs {
		arn := awssdk.ToString(lb.LoadBalancerArn)
		count, err := s.targetGroupCount(ctx, arn)
		if err != nil {
			return scanner.Result{}, err
		}

		state := ""
		if lb.State != nil {
			state = string(lb.State.Code)
		}

		res.Resources = append(res.Resources, domain.Resource{
			ResourceID:   arn,
			ResourceType: domain.ResourceTypeLoadBalancer,
			Region:       s.region,
			State:        state,
			Tags:         tags[arn],
			Metadata: map[string]any{
				domain.MetadataName:             awssdk.ToString(lb.LoadBalancerName),
				domain.MetadataTargetGroupCount: count,
				"type":                          string(lb.Type),
				"dns_name":                      awssdk.ToString(lb.DNSName),
			},
		})
	}
	return res, nil
}

func (s *loadBalancerScanner) targetGroupCount(ctx context.Context, arn string) (int64, error) {
	var count int64
	paginator := elbv2.NewDescribeTargetGroupsPaginator(s.client, &elbv2.DescribeTargetGroupsInput{
		LoadBalancerArn: awssdk.String(arn),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to describe target groups for %s: %w", arn, err)
		}
		count += int64(len(page.TargetGroups))
	}
	return count, nil
}

func (s *loadBalancerScanner) tags(ctx context.Context, lbs []elbtypes.LoadBalancer) (map[string]map[string]string, error) {
	res := make(map[string]map[string]string, len(lbs))
	for start := 0; start < len(lbs); start += describeTagsBatch {
		end := min(start+describeTagsBatch, len(lbs))

		arns := make([]string, 0, end-start)
		for _, lb := range lbs[start:end] {
			arns = append(arns, awssdk.ToString(lb.LoadBalancerArn))
		}

		out, err := s.client.DescribeTags(ctx, &elbv2.DescribeTagsInput{ResourceArns: arns})
		if err != nil {
			return nil, fmt.Errorf("failed to describe load balancer tags: %w", err)
		}
		for _, desc := range out.TagDescriptions {
			tags := make(map[string]string, len(desc.Tags))
			for _, t := range desc.Tags {
				if t.Key != nil {
					tags[*t.Key] = awssdk.ToString(t.Value)
				}
			}
			res[awssdk.ToString(desc.ResourceArn)] = tags
		}
	}
	return res, nil
}
