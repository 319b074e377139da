package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceTypeCompute      ResourceType = "COMPUTE"
	ResourceTypeVolume       ResourceType = "VOLUME"
	ResourceTypeBucket       ResourceType = "BUCKET"
	ResourceTypeSnapshot     ResourceType = "SNAPSHOT"
	ResourceTypeElasticIP    ResourceType = "ELASTIC_IP"
	ResourceTypeLoadBalancer ResourceType = "LOAD_BALANCER"
)

// ResourceTypes lists every tracked resource type in a stable order.
var ResourceTypes = []ResourceType{
	ResourceTypeCompute,
	ResourceTypeVolume,
	ResourceTypeBucket,
	ResourceTypeSnapshot,
	ResourceTypeElasticIP,
	ResourceTypeLoadBalancer,
}

func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range ResourceTypes {
		if rt == known {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unknown resource type: %q", s)
}

// Well-known metadata keys populated by scanners and read by rules.
const (
	MetadataAssociationID      = "association_id"
	MetadataTargetGroupCount   = "target_group_count"
	MetadataLifecycleRuleCount = "lifecycle_rule_count"
	MetadataStartTime          = "start_time"
	MetadataSizeGB             = "size_gb"
	MetadataInstanceType       = "instance_type"
	MetadataSource             = "source"
	MetadataName               = "name"
)

// Resource is the last known state of a cloud resource for a client.
type Resource struct {
	ClientID     string
	AccountID    string
	ResourceID   string
	ResourceType ResourceType
	Region       string
	State        string
	Tags         map[string]string
	Metadata     map[string]any
	DetectedAt   time.Time
	LastSeenAt   time.Time
	IsActive     bool
}

type ResourceFilter struct {
	AccountID     string
	ResourceTypes []ResourceType
}

func (r Resource) HasTag(key string) bool {
	_, ok := r.Tags[key]
	return ok
}

func (r Resource) MetadataString(key string) (string, bool) {
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// MetadataInt reads an integer value. Values that went through a JSON round
// trip arrive as float64 or json.Number and are accepted when integral.
func (r Resource) MetadataInt(key string) (int64, bool) {
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func (r Resource) MetadataTime(key string) (time.Time, bool) {
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
