// Package policyrepair evaluates repair eligibility through an embedded Rego
// policy, so the auto-repair allow-list is reviewable policy text rather
// than scattered conditionals.
package policyrepair

import (
	"context"
	"encoding/json"
	"errors"

	"attestor/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.attestor.repair.result"

// Only stale_date is apply-eligible. minor_inconsistency may arrive flagged
// auto_repairable, and is still escalated: the engine is permitted to flag
// inconsistencies, not to guess at their resolution.
const repairPolicy = `package attestor.repair

followup := {"critical": 1, "high": 2, "medium": 5, "low": 7}

default days := 3

days := followup[input.severity]

apply {
	input.auto_repairable
	input.classification == "stale_date"
}

result := {"action": "apply", "followup_days": 0} {
	apply
}

result := {"action": "escalate", "followup_days": days} {
	not apply
}
`

type Input struct {
	Classification string `json:"classification"`
	Severity       string `json:"severity"`
	AutoRepairable bool   `json:"auto_repairable"`
}

type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngine(ctx context.Context) (*Engine, error) {
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Module("repair.rego", repairPolicy),
		rego.StrictBuiltinErrors(true),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Decide(ctx context.Context, issue domain.IntegrityIssue) (domain.RepairDecision, error) {
	if e == nil {
		return domain.RepairDecision{}, errors.New("repair policy engine is nil")
	}
	input := Input{
		Classification: string(issue.Classification),
		Severity:       string(issue.Severity),
		AutoRepairable: issue.AutoRepairable,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.RepairDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.RepairDecision{}, errors.New("empty repair policy result")
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (domain.RepairDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.RepairDecision{}, err
	}
	var decision domain.RepairDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.RepairDecision{}, err
	}
	if decision.Action != domain.RepairActionApply && decision.Action != domain.RepairActionEscalate {
		return domain.RepairDecision{}, errors.New("invalid repair policy action")
	}
	return decision, nil
}
