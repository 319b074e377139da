package config

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"gopkg.in/ini.v1"
)

// Registry is the directory of audited clients. Each ini section is one
// client keyed by its id:
//
//	[acme]
//	name          = Acme Corp
//	account_id    = 123456789012
//	role_arn      = arn:aws:iam::123456789012:role/waste-atlas-audit
//	external_id   = acme-audit
//	regions       = us-east-1, eu-west-1
//	required_tags = Owner, CostCenter
type Registry interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, clientID string) (domain.Client, error)
	RequiredTags(clientID string) []string
}

type clientSection struct {
	Name         string   `ini:"name"`
	AccountID    string   `ini:"account_id"`
	RoleARN      string   `ini:"role_arn"`
	ExternalID   string   `ini:"external_id"`
	Profile      string   `ini:"profile"`
	Regions      []string `ini:"regions" delim:","`
	RequiredTags []string `ini:"required_tags" delim:","`
}

type cfgRegistry struct {
	clients map[string]domain.Client
}

func NewRegistry(path string) (Registry, error) {
	return LoadRegistry(path)
}

// LoadRegistry parses a client directory from any source ini.Load accepts:
// a file name, raw bytes or a reader.
func LoadRegistry(source any) (Registry, error) {
	cfg, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("load client registry: %w", err)
	}

	clients := make(map[string]domain.Client)
	for _, section := range cfg.Sections() {
		if len(section.Keys()) == 0 {
			continue
		}
		id := strings.TrimSpace(section.Name())
		if id == ini.DefaultSection {
			return nil, fmt.Errorf("client keys must be placed under a [client] section")
		}

		var raw clientSection
		if err := section.MapTo(&raw); err != nil {
			return nil, fmt.Errorf("client %s: %w", id, err)
		}
		if strings.TrimSpace(raw.AccountID) == "" {
			return nil, fmt.Errorf("client %s: account_id is required", id)
		}

		name := strings.TrimSpace(raw.Name)
		if name == "" {
			name = id
		}
		clients[id] = domain.Client{
			ID:   id,
			Name: name,
			Account: domain.Account{
				ID:         strings.TrimSpace(raw.AccountID),
				RoleARN:    strings.TrimSpace(raw.RoleARN),
				ExternalID: strings.TrimSpace(raw.ExternalID),
				Profile:    strings.TrimSpace(raw.Profile),
				Regions:    cleanList(raw.Regions),
			},
			RequiredTags: cleanList(raw.RequiredTags),
		}
	}

	return &cfgRegistry{clients: clients}, nil
}

func (cr *cfgRegistry) ListClients(_ context.Context) ([]domain.Client, error) {
	clients := make([]domain.Client, 0, len(cr.clients))
	for _, c := range cr.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func (cr *cfgRegistry) GetClient(_ context.Context, clientID string) (domain.Client, error) {
	c, ok := cr.clients[clientID]
	if !ok {
		return domain.Client{}, fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}
	return c, nil
}

// RequiredTags returns the tag keys every resource of the client must carry.
// Unknown clients require nothing.
func (cr *cfgRegistry) RequiredTags(clientID string) []string {
	c, ok := cr.clients[clientID]
	if !ok {
		return nil
	}
	return append([]string(nil), c.RequiredTags...)
}

func cleanList(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
