package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
)

const (
	errCodeNoSuchLifecycle = "NoSuchLifecycleConfiguration"
	errCodeNoSuchTagSet    = "NoSuchTagSet"
)

type bucketAPI interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(
		ctx context.Context,
		params *s3.GetBucketLocationInput,
		optFns ...func(*s3.Options),
	) (*s3.GetBucketLocationOutput, error)
	GetBucketLifecycleConfiguration(
		ctx context.Context,
		params *s3.GetBucketLifecycleConfigurationInput,
		optFns ...func(*s3.Options),
	) (*s3.GetBucketLifecycleConfigurationOutput, error)
	GetBucketTagging(
		ctx context.Context,
		params *s3.GetBucketTaggingInput,
		optFns ...func(*s3.Options),
	) (*s3.GetBucketTaggingOutput, error)
}

type bucketScanner struct {
	client bucketAPI
}

func NewBucketScanner(client bucketAPI) scanner.Scanner {
	return &bucketScanner{client: client}
}

func (s *bucketScanner) Name() string                      { return "s3:buckets" }
func (s *bucketScanner) ResourceType() domain.ResourceType { return domain.ResourceTypeBucket }
func (s *bucketScanner) Region() string                    { return scanner.GlobalRegion }

// Scan lists every bucket and records how many lifecycle rules it carries.
// A missing lifecycle configuration means zero rules; any other provider
// error fails the scan rather than being read as "no violation".
func (s *bucketScanner) Scan(ctx context.Context) (scanner.Result, error) {
	resp, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return scanner.Result{}, fmt.Errorf("failed to list S3 buckets: %w", err)
	}

	var res scanner.Result
	for _, bucket := range resp.Buckets {
		name := awssdk.ToString(bucket.Name)
		if name == "" {
			res.Skipped++
			continue
		}

		region, err := s.bucketRegion(ctx, name)
		if err != nil {
			return scanner.Result{}, err
		}
		inRegion := func(o *s3.Options) { o.Region = region }

		rules, err := s.lifecycleRuleCount(ctx, name, inRegion)
		if err != nil {
			return scanner.Result{}, err
		}
		tags, err := s.bucketTags(ctx, name, inRegion)
		if err != nil {
			return scanner.Result{}, err
		}

		metadata := map[string]any{
			domain.MetadataLifecycleRuleCount: rules,
		}
		if bucket.CreationDate != nil {
			metadata["creation_date"] = bucket.CreationDate.UTC()
		}

		res.Resources = append(res.Resources, domain.Resource{
			ResourceID:   name,
			ResourceType: domain.ResourceTypeBucket,
			Region:       region,
			State:        "available",
			Tags:         tags,
			Metadata:     metadata,
		})
	}
	return res, nil
}

func (s *bucketScanner) bucketRegion(ctx context.Context, name string) (string, error) {
	loc, err := s.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: awssdk.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to get location of bucket %s: %w", name, err)
	}

	switch region := string(loc.LocationConstraint); region {
	case "":
		return "us-east-1", nil
	case "EU":
		return "eu-west-1", nil
	default:
		return region, nil
	}
}

func (s *bucketScanner) lifecycleRuleCount(ctx context.Context, name string, optFns ...func(*s3.Options)) (int64, error) {
	out, err := s.client.GetBucketLifecycleConfiguration(ctx,
		&s3.GetBucketLifecycleConfigurationInput{Bucket: awssdk.String(name)}, optFns...)
	if isAPIError(err, errCodeNoSuchLifecycle) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get lifecycle configuration of bucket %s: %w", name, err)
	}
	return int64(len(out.Rules)), nil
}

func (s *bucketScanner) bucketTags(ctx context.Context, name string, optFns ...func(*s3.Options)) (map[string]string, error) {
	out, err := s.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: awssdk.String(name)}, optFns...)
	if isAPIError(err, errCodeNoSuchTagSet) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tags of bucket %s: %w", name, err)
	}

	tags := make(map[string]string, len(out.TagSet))
	for _, t := range out.TagSet {
		if t.Key != nil {
			tags[*t.Key] = awssdk.ToString(t.Value)
		}
	}
	return tags, nil
}

func isAPIError(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
