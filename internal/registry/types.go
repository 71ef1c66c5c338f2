// Package registry implements the Capability Registry (C2): immutable
// fully-qualified identifiers, dedup by code hash, and named lookup.
package registry

import "time"

// Visibility is the sharing scope of a capability record.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityProject Visibility = "project"
	VisibilityOrg     Visibility = "org"
	VisibilityPublic  Visibility = "public"
)

// Routing says whether a capability's tools execute locally or against a
// cloud-routed provider.
type Routing string

const (
	RoutingLocal Routing = "local"
	RoutingCloud Routing = "cloud"
)

// Scope is the (org, project) pair that bounds displayName and codeHash
// uniqueness.
type Scope struct {
	Org     string
	Project string
}

// Key renders a scope as a map key / Redis key segment.
func (s Scope) Key() string {
	return s.Org + ":" + s.Project
}

// Record is a capability registry row: the durable, named half of a
// capability. The Capability itself (code, trace linkage) lives in the
// workflow-pattern table referenced by WorkflowPatternID.
type Record struct {
	FQDN              string     `json:"fqdn"`
	Org               string     `json:"org"`
	Project           string     `json:"project"`
	Namespace         string     `json:"namespace"`
	Action            string     `json:"action"`
	ShortHash         string     `json:"shortHash"`
	WorkflowPatternID string     `json:"workflowPatternId"`
	CodeHash          string     `json:"codeHash"`
	// ParameterSchema is a JSON Schema document describing this
	// capability's accepted arguments; Accept Suggestion and
	// Call-by-Name dispatch merge caller-supplied args against its
	// defaults before execution.
	ParameterSchema   string     `json:"parameterSchema,omitempty"`
	CreatedBy         string     `json:"createdBy"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	Version           int        `json:"version"`
	Verified          bool       `json:"verified"`
	Visibility        Visibility `json:"visibility"`
	Routing           Routing    `json:"routing"`
	Tags              []string   `json:"tags,omitempty"`
	UsageCount        int64      `json:"usageCount"`
	SuccessCount      int64      `json:"successCount"`
	TotalLatencyMs    int64      `json:"totalLatencyMs"`
}

// DisplayName is the namespace:action form used by resolveByName and by
// rename's uniqueness check; it is NOT the FQDN.
func (r *Record) DisplayName() string {
	return r.Namespace + ":" + r.Action
}

// SuccessRate is successCount / max(usageCount, 1).
func (r *Record) SuccessRate() float64 {
	if r.UsageCount == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.UsageCount)
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Scope             Scope
	Namespace         string
	Action            string
	WorkflowPatternID string
	CodeHash          string
	ShortHash         string
	ParameterSchema   string
	ToolsUsed         []string
	CreatedBy         string
	Visibility        Visibility
	Tags              []string
	// CloudNamespaces marks tool namespaces tagged "cloud"; Create infers
	// Routing from whether any of ToolsUsed falls in this set.
	CloudNamespaces map[string]bool
}
