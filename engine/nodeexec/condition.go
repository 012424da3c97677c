package nodeexec

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
)

// ConditionExecutor ejecuta condiciones
type ConditionExecutor struct {
	contexts engine.FlowUserContextRepository
}

var _ Executor = (*ConditionExecutor)(nil)

func NewConditionExecutor(contexts engine.FlowUserContextRepository) *ConditionExecutor {
	return &ConditionExecutor{contexts: contexts}
}

// Execute evaluates every configured comparison against the user's saved flow
// variables and returns the __true or __false selector id.
func (ce *ConditionExecutor) Execute(ctx context.Context, meta engine.Metadata, g *flow.Graph, node *flow.Node, userIdentifier string) (any, error) {
	cfg, err := flow.ExtractConditionConfig(node.Data)
	if err != nil {
		return nil, errx.Wrap(err, "invalid condition node data", errx.TypeValidation)
	}
	if len(cfg.FlowNodeConditions) == 0 {
		return nil, errx.New("no conditions found in condition node", errx.TypeValidation)
	}

	contexts, err := ce.contexts.FindAll(ctx, userIdentifier, meta.BrandID, g.Flow.ID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load flow variables", errx.TypeInternal)
	}

	vars := make(map[string]string, len(contexts))
	for _, c := range contexts {
		vars[c.VariableName] = c.VariableValue
	}

	results := make([]bool, 0, len(cfg.FlowNodeConditions))
	for _, cond := range cfg.FlowNodeConditions {
		results = append(results, ce.evaluate(cond, vars))
	}

	finalResult := false
	switch cfg.Operator() {
	case flow.ConditionOperatorAnd, flow.ConditionOperatorNone:
		finalResult = allTrue(results)
	case flow.ConditionOperatorOr:
		finalResult = anyTrue(results)
	}

	selector := cfg.FalseSelector()
	resultType := "false"
	if finalResult {
		selector = cfg.TrueSelector()
		resultType = "true"
	}

	if selector == "" {
		return nil, engine.ErrMissingSelector().
			WithDetail("node_id", node.NodeID.String()).
			WithDetail("result", resultType)
	}

	log.Printf("🔀 [PROCESS_INTERNAL] Condition evaluated to %s, returning selector: %s", resultType, selector)
	return selector, nil
}

// evaluate resuelve una comparación. Las variables se buscan con y sin el
// prefijo @ porque el editor las guarda de ambas formas.
func (ce *ConditionExecutor) evaluate(cond flow.NodeCondition, vars map[string]string) bool {
	withAt := cond.Variable
	if !strings.HasPrefix(withAt, "@") {
		withAt = "@" + withAt
	}
	withoutAt := strings.TrimLeft(cond.Variable, "@")

	actual := vars[withAt]
	if actual == "" {
		actual = vars[withoutAt]
	}
	expected := cond.Value

	log.Printf("🔎 [PROCESS_INTERNAL] Evaluating condition: variable='%s' type='%s' expected='%s' actual='%s'",
		cond.Variable, cond.FlowConditionType, expected, actual)

	switch cond.FlowConditionType {
	case flow.ConditionEqual:
		return strings.EqualFold(actual, expected)
	case flow.ConditionNotEqual:
		return !strings.EqualFold(actual, expected)
	case flow.ConditionContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case flow.ConditionNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case flow.ConditionGreaterThan:
		actualNum, err1 := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		expectedNum, err2 := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if err1 != nil || err2 != nil {
			log.Printf("⚠️  [PROCESS_INTERNAL] GreaterThan comparison failed (non-numeric values): actual='%s', expected='%s'", actual, expected)
			return false
		}
		return actualNum > expectedNum
	case flow.ConditionLessThan:
		actualNum, err1 := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		expectedNum, err2 := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if err1 != nil || err2 != nil {
			log.Printf("⚠️  [PROCESS_INTERNAL] LessThan comparison failed (non-numeric values): actual='%s', expected='%s'", actual, expected)
			return false
		}
		return actualNum < expectedNum
	default:
		log.Printf("⚠️  [PROCESS_INTERNAL] Unknown condition type: '%s', defaulting to false", cond.FlowConditionType)
		return false
	}
}

func (ce *ConditionExecutor) SupportsType(nodeType flow.NodeType) bool {
	return nodeType == flow.NodeTypeCondition
}

func allTrue(results []bool) bool {
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func anyTrue(results []bool) bool {
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}
