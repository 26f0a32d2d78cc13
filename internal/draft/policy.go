// Package draft implements the commit draft/approval workflow: propose a
// draft commit against evidence, route it through a policy-defined approval
// chain, and apply it to the ledger once approved.
package draft

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Stage is one named approval gate in a policy rule.
type Stage struct {
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	Assignees    []string `yaml:"assignees,omitempty"`
	MaxAssignees int      `yaml:"max_assignees,omitempty"`
	MinApprovals int      `yaml:"min_approvals"`
}

// When is the match condition for a policy rule.
type When struct {
	Default         bool     `yaml:"default,omitempty"`
	LabelsAny       []string `yaml:"labels_any,omitempty"`
	FailedCmd       bool     `yaml:"failed_cmd,omitempty"`
	EvidenceCountGE int      `yaml:"evidence_count_gte,omitempty"`
}

// Rule is one first-match entry in a v2 policy.
type Rule struct {
	When   When    `yaml:"when"`
	Stages []Stage `yaml:"stages,omitempty"`
}

// Policy is the full v2 policy document: an ordered list of rules.
type Policy struct {
	Rules []Rule `yaml:"rules"`
}

// policyV1 is the flat, pre-stage policy shape. Loaded files in this shape
// are transparently converted to a single-rule v2 policy.
type policyV1 struct {
	MinApprovals    int  `yaml:"min_approvals"`
	RequireApproval bool `yaml:"require_approval"`
}

// LoadPolicy reads and parses a policy file, converting a v1 document to v2
// if that's what's on disk.
func LoadPolicy(path string) (Policy, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Policy{}, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("draft: read policy: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Policy{}, fmt.Errorf("draft: parse policy: %w", err)
	}
	if _, isV2 := raw["rules"]; !isV2 {
		var v1 policyV1
		if err := yaml.Unmarshal(b, &v1); err != nil {
			return Policy{}, fmt.Errorf("draft: parse v1 policy: %w", err)
		}
		return convertV1(v1), nil
	}

	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("draft: parse v2 policy: %w", err)
	}
	return p, nil
}

// convertV1 maps a flat min_approvals/require_approval policy to a v2
// policy with one default rule: no stages unless require_approval is set,
// in which case every draft gets a single stage named "approval" gated at
// min_approvals (at least 1). No second rule is generated.
func convertV1(v1 policyV1) Policy {
	if !v1.RequireApproval {
		return Policy{Rules: []Rule{{When: When{Default: true}}}}
	}
	min := v1.MinApprovals
	if min < 1 {
		min = 1
	}
	return Policy{
		Rules: []Rule{
			{
				When: When{Default: true},
				Stages: []Stage{
					{Name: "approval", MinApprovals: min},
				},
			},
		},
	}
}

// Evaluate returns the stages list for the first rule in p that matches
// labels and evidence. The caller expands each stage's Role into concrete
// Assignees via an Actors table before persisting.
func Evaluate(p Policy, labels []string, evidenceHasFailedCmd bool, evidenceCount int) []Stage {
	for _, r := range p.Rules {
		if ruleMatches(r.When, labels, evidenceHasFailedCmd, evidenceCount) {
			return r.Stages
		}
	}
	return nil
}

func ruleMatches(w When, labels []string, failedCmd bool, evidenceCount int) bool {
	if w.Default {
		return true
	}
	if len(w.LabelsAny) > 0 && intersects(w.LabelsAny, labels) {
		return true
	}
	if w.FailedCmd && failedCmd {
		return true
	}
	if w.EvidenceCountGE > 0 && evidenceCount >= w.EvidenceCountGE {
		return true
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}
