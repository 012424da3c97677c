package flow

import (
	"fmt"
	"testing"

	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string, nodeType NodeType, data map[string]any) Node {
	if data == nil {
		data = map[string]any{}
	}
	return Node{NodeID: kernel.NodeID(id), Type: nodeType, Data: data}
}

func testEdge(id, source, target string) Edge {
	return Edge{EdgeID: kernel.EdgeID(id), SourceNodeID: source, TargetNodeID: target}
}

func messageData() map[string]any {
	return map[string]any{
		"flowReplies": []any{map[string]any{"flowReplyType": "text", "data": "hi"}},
	}
}

func TestValidateGraph(t *testing.T) {
	t.Run("linear flow passes", func(t *testing.T) {
		nodes := []Node{
			testNode("start", NodeTypeTriggerKeyword, map[string]any{"triggerKeywords": []any{"hola"}, "isStartNode": true}),
			testNode("msg", NodeTypeMessage, messageData()),
			testNode("q", NodeTypeQuestion, map[string]any{"flowReplies": []any{map[string]any{"data": "name?"}}}),
		}
		edges := []Edge{
			testEdge("e1", "start", "msg"),
			testEdge("e2", "msg", "q"),
		}

		violations := ValidateGraph(nodes, edges, 0)
		assert.Empty(t, violations)
	})

	t.Run("missing node id reported", func(t *testing.T) {
		nodes := []Node{testNode("", NodeTypeMessage, messageData())}

		violations := ValidateGraph(nodes, nil, 0)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], "has no id")
	})

	t.Run("duplicate node id reported", func(t *testing.T) {
		nodes := []Node{
			testNode("dup", NodeTypeMessage, messageData()),
			testNode("dup", NodeTypeMessage, messageData()),
		}

		violations := ValidateGraph(nodes, nil, 0)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], `duplicate node id "dup"`)
	})

	t.Run("edge from unknown source reported", func(t *testing.T) {
		nodes := []Node{testNode("a", NodeTypeMessage, messageData())}
		edges := []Edge{testEdge("e1", "ghost", "a")}

		violations := ValidateGraph(nodes, edges, 0)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], `unknown source "ghost"`)
	})

	t.Run("edge to unknown target reported", func(t *testing.T) {
		nodes := []Node{testNode("a", NodeTypeMessage, messageData())}
		edges := []Edge{testEdge("e1", "a", "ghost")}

		violations := ValidateGraph(nodes, edges, 0)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], `unknown target "ghost"`)
	})

	t.Run("condition branch selectors are valid edge sources", func(t *testing.T) {
		nodes := []Node{
			testNode("cond", NodeTypeCondition, map[string]any{
				"flowNodeConditions": []any{
					map[string]any{"flowConditionType": "Equal", "variable": "@city", "value": "lima"},
				},
				"conditionResult": []any{
					map[string]any{"id": "cond__true-1"},
					map[string]any{"id": "cond__false-1"},
				},
			}),
			testNode("yes", NodeTypeMessage, messageData()),
			testNode("no", NodeTypeMessage, messageData()),
		}
		edges := []Edge{
			testEdge("e1", "cond__true-1", "yes"),
			testEdge("e2", "cond__false-1", "no"),
		}

		violations := ValidateGraph(nodes, edges, 0)
		assert.Empty(t, violations)
	})

	t.Run("expected answer ids are valid edge sources", func(t *testing.T) {
		nodes := []Node{
			testNode("btn", NodeTypeButtonQuestion, map[string]any{
				"expectedAnswers": []any{
					map[string]any{"id": "ans-yes", "expectedInput": "Yes"},
				},
			}),
			testNode("next", NodeTypeMessage, messageData()),
		}
		edges := []Edge{testEdge("e1", "ans-yes", "next")}

		violations := ValidateGraph(nodes, edges, 0)
		assert.Empty(t, violations)
	})

	t.Run("message chain over the limit reported once", func(t *testing.T) {
		var nodes []Node
		var edges []Edge
		for i := 0; i < 4; i++ {
			nodes = append(nodes, testNode(fmt.Sprintf("m%d", i), NodeTypeMessage, messageData()))
		}
		for i := 0; i < 3; i++ {
			edges = append(edges, testEdge(fmt.Sprintf("e%d", i), fmt.Sprintf("m%d", i), fmt.Sprintf("m%d", i+1)))
		}

		violations := ValidateGraph(nodes, edges, 3)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], `starting at "m0" spans 4 nodes, max is 3`)
	})

	t.Run("chain within the limit passes", func(t *testing.T) {
		nodes := []Node{
			testNode("m0", NodeTypeMessage, messageData()),
			testNode("m1", NodeTypeMessage, messageData()),
			testNode("q", NodeTypeQuestion, map[string]any{"flowReplies": []any{map[string]any{"data": "?"}}}),
		}
		edges := []Edge{
			testEdge("e1", "m0", "m1"),
			testEdge("e2", "m1", "q"),
		}

		violations := ValidateGraph(nodes, edges, 3)
		assert.Empty(t, violations)
	})

	t.Run("templates count toward the chain", func(t *testing.T) {
		nodes := []Node{
			testNode("m0", NodeTypeMessage, messageData()),
			testNode("tpl", NodeTypeSendTemplate, nil),
			testNode("mail", NodeTypeSendEmailTemplate, map[string]any{"emailTemplateMongoId": "tpl-1"}),
		}
		edges := []Edge{
			testEdge("e1", "m0", "tpl"),
			testEdge("e2", "tpl", "mail"),
		}

		violations := ValidateGraph(nodes, edges, 2)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], "spans 3 nodes, max is 2")
	})

	t.Run("chain cycle with a head reported", func(t *testing.T) {
		nodes := []Node{
			testNode("head", NodeTypeMessage, messageData()),
			testNode("a", NodeTypeMessage, messageData()),
			testNode("b", NodeTypeMessage, messageData()),
		}
		edges := []Edge{
			testEdge("e1", "head", "a"),
			testEdge("e2", "a", "b"),
			testEdge("e3", "b", "a"),
		}

		violations := ValidateGraph(nodes, edges, 10)
		require.NotEmpty(t, violations)
		assert.Contains(t, violations[0], "loops back to")
	})

	t.Run("headless chain cycle reported", func(t *testing.T) {
		nodes := []Node{
			testNode("a", NodeTypeMessage, messageData()),
			testNode("b", NodeTypeMessage, messageData()),
		}
		edges := []Edge{
			testEdge("e1", "a", "b"),
			testEdge("e2", "b", "a"),
		}

		violations := ValidateGraph(nodes, edges, 10)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], "loops")
	})

	t.Run("non-numeric failsCount reported", func(t *testing.T) {
		nodes := []Node{
			testNode("q", NodeTypeQuestion, map[string]any{
				"flowReplies":      []any{map[string]any{"data": "?"}},
				"answerValidation": map[string]any{"type": "Number", "failsCount": "lots"},
			}),
		}

		violations := ValidateGraph(nodes, nil, 0)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], `non-numeric failsCount "lots"`)
	})

	t.Run("numeric failsCount passes", func(t *testing.T) {
		nodes := []Node{
			testNode("q", NodeTypeQuestion, map[string]any{
				"flowReplies":      []any{map[string]any{"data": "?"}},
				"answerValidation": map[string]any{"type": "Number", "failsCount": "5"},
			}),
		}

		violations := ValidateGraph(nodes, nil, 0)
		assert.Empty(t, violations)
	})
}
