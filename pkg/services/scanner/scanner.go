package scanner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
)

// GlobalRegion marks scanners whose provider API is not regional.
const GlobalRegion = "global"

// Result is the output of one scanner invocation. Skipped counts descriptors
// that were dropped because they were malformed.
type Result struct {
	Resources []domain.Resource
	Skipped   int
}

// Scanner lists the resources of a single type in a single region.
type Scanner interface {
	Name() string
	ResourceType() domain.ResourceType
	Region() string
	Scan(ctx context.Context) (Result, error)
}

// Connector opens an authenticated session for an account and returns the
// scanners available to it. Credential problems are reported as
// domain.ErrCredentials.
type Connector interface {
	Connect(ctx context.Context, account domain.Account) (*Registry, error)
}

type scannerKey struct {
	name   string
	region string
}

// Registry groups scanners by resource type.
type Registry struct {
	byType      map[domain.ResourceType][]Scanner
	callTimeout time.Duration
}

func NewRegistry(scanners ...Scanner) (*Registry, error) {
	reg := &Registry{
		byType: make(map[domain.ResourceType][]Scanner),
	}

	seen := make(map[scannerKey]struct{}, len(scanners))
	for _, s := range scanners {
		key := scannerKey{name: s.Name(), region: s.Region()}
		if _, exists := seen[key]; exists {
			return nil, fmt.Errorf("duplicate scanner %s for region: %s", key.name, key.region)
		}
		seen[key] = struct{}{}
		reg.byType[s.ResourceType()] = append(reg.byType[s.ResourceType()], s)
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("at least one scanner must be provided")
	}

	return reg, nil
}

// WithCallTimeout bounds every scanner invocation made through the registry.
func (r *Registry) WithCallTimeout(d time.Duration) *Registry {
	r.callTimeout = d
	return r
}

func (r *Registry) ResourceTypes() []domain.ResourceType {
	types := make([]domain.ResourceType, 0, len(r.byType))
	for _, t := range domain.ResourceTypes {
		if _, ok := r.byType[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

func (r *Registry) Scanners(resourceType domain.ResourceType) []Scanner {
	return slices.Clone(r.byType[resourceType])
}

// Scan runs every scanner registered for the resource type and merges their
// output. Any failing scanner fails the whole type.
func (r *Registry) Scan(ctx context.Context, resourceType domain.ResourceType) (Result, error) {
	scanners, ok := r.byType[resourceType]
	if !ok {
		return Result{}, fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	var merged Result
	for _, s := range scanners {
		res, err := r.Run(ctx, s)
		if err != nil {
			return Result{}, err
		}
		merged.Resources = append(merged.Resources, res.Resources...)
		merged.Skipped += res.Skipped
	}
	return merged, nil
}

// Run invokes one scanner under the registry call timeout. Errors other than
// credential failures are tagged as provider failures.
func (r *Registry) Run(ctx context.Context, s Scanner) (Result, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	res, err := s.Scan(ctx)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, domain.ErrCredentials) || errors.Is(err, domain.ErrProvider) {
		return Result{}, fmt.Errorf("scan %s in %s: %w", s.Name(), s.Region(), err)
	}
	return Result{}, fmt.Errorf("%w: scan %s in %s: %w", domain.ErrProvider, s.Name(), s.Region(), err)
}
