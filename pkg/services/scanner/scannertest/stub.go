// Package scannertest provides scanner doubles for tests.
package scannertest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
)

// Stub returns a fixed result or error and counts its invocations.
type Stub struct {
	ScannerName string
	Type        domain.ResourceType
	Location    string
	Result      scanner.Result
	Err         error
	Delay       time.Duration

	calls atomic.Int32
}

func (s *Stub) Name() string                      { return s.ScannerName }
func (s *Stub) ResourceType() domain.ResourceType { return s.Type }

func (s *Stub) Region() string {
	if s.Location == "" {
		return "us-east-1"
	}
	return s.Location
}

func (s *Stub) Scan(ctx context.Context) (scanner.Result, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return scanner.Result{}, ctx.Err()
		}
	}
	return s.Result, s.Err
}

func (s *Stub) Calls() int {
	return int(s.calls.Load())
}

// Resources builds a stub result out of resources.
func Resources(resources ...domain.Resource) scanner.Result {
	return scanner.Result{Resources: resources}
}

// Connector hands out a fixed registry or error.
type Connector struct {
	Registry *scanner.Registry
	Err      error

	calls atomic.Int32
}

func (c *Connector) Connect(context.Context, domain.Account) (*scanner.Registry, error) {
	c.calls.Add(1)
	return c.Registry, c.Err
}

func (c *Connector) Calls() int {
	return int(c.calls.Load())
}
