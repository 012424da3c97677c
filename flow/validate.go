package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Graph Validation
// ============================================================================

// DefaultMaxChainDepth limita cuántos nodos de acción encadena un flujo sin
// esperar respuesta del usuario. Cada nodo encadenado es un despacho saliente,
// así que el tope frena tormentas de envíos antes de guardar el flujo.
const DefaultMaxChainDepth = 10

// ValidateGraph checks the structural rules a flow must satisfy when saved:
// node ids present and unique, edges pointing at known nodes or selector ids,
// auto-dispatched chains bounded by maxChainDepth, and failsCount values
// parseable. It returns one message per violation; empty means valid.
func ValidateGraph(nodes []Node, edges []Edge, maxChainDepth int) []string {
	if maxChainDepth <= 0 {
		maxChainDepth = DefaultMaxChainDepth
	}

	var violations []string

	// 1. Node ids deben existir y ser únicos dentro del flujo
	byID := make(map[string]*Node, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		id := n.NodeID.String()
		if id == "" {
			violations = append(violations, fmt.Sprintf("node at position %d has no id", i))
			continue
		}
		if _, dup := byID[id]; dup {
			violations = append(violations, fmt.Sprintf("duplicate node id %q", id))
			continue
		}
		byID[id] = n
	}

	// 2. Fuentes válidas de aristas: nodos reales más los selectores
	// sintéticos que cada nodo expone (ramas de condición, resultados de
	// delay, respuestas esperadas)
	sources := make(map[string]bool, len(byID))
	for id := range byID {
		sources[id] = true
	}
	for i := range nodes {
		for _, sel := range selectorIDsOfNode(&nodes[i]) {
			if sel != "" {
				sources[sel] = true
			}
		}
	}

	// 3. Toda arista sale de una fuente conocida y llega a un nodo real
	for i := range edges {
		e := &edges[i]
		if !sources[e.SourceNodeID] {
			violations = append(violations, fmt.Sprintf("edge %q references unknown source %q", e.EdgeID, e.SourceNodeID))
		}
		if _, ok := byID[e.TargetNodeID]; !ok {
			violations = append(violations, fmt.Sprintf("edge %q references unknown target %q", e.EdgeID, e.TargetNodeID))
		}
	}

	// 4. Las cadenas de nodos auto-despachados quedan acotadas. Solo se
	// recorre desde la cabeza de cada cadena para reportar una vez por
	// cadena, y un ciclo entre nodos encadenables también es una violación.
	firstTarget := make(map[string]string, len(edges))
	for i := range edges {
		e := &edges[i]
		if _, ok := firstTarget[e.SourceNodeID]; !ok {
			firstTarget[e.SourceNodeID] = e.TargetNodeID
		}
	}
	hasChainedPred := make(map[string]bool)
	for i := range nodes {
		n := &nodes[i]
		if !n.Type.AutoChains() {
			continue
		}
		next, ok := byID[firstTarget[n.NodeID.String()]]
		if ok && next.Type.AutoChains() {
			hasChainedPred[next.NodeID.String()] = true
		}
	}
	walked := make(map[string]bool)
	for i := range nodes {
		n := &nodes[i]
		if !n.Type.AutoChains() || hasChainedPred[n.NodeID.String()] {
			continue
		}
		depth := 1
		walked[n.NodeID.String()] = true
		cur := n
		for {
			next, ok := byID[firstTarget[cur.NodeID.String()]]
			if !ok || !next.Type.AutoChains() {
				break
			}
			if walked[next.NodeID.String()] {
				violations = append(violations, fmt.Sprintf("message chain starting at %q loops back to %q", n.NodeID, next.NodeID))
				break
			}
			walked[next.NodeID.String()] = true
			depth++
			cur = next
		}
		if depth > maxChainDepth {
			violations = append(violations, fmt.Sprintf("message chain starting at %q spans %d nodes, max is %d", n.NodeID, depth, maxChainDepth))
		}
	}
	// Un ciclo puro de nodos encadenables no tiene cabeza, así que no fue
	// recorrido arriba
	for i := range nodes {
		n := &nodes[i]
		if !n.Type.AutoChains() || walked[n.NodeID.String()] {
			continue
		}
		if inChainCycle(n, byID, firstTarget) {
			violations = append(violations, fmt.Sprintf("message chain through %q loops", n.NodeID))
			markCycleWalked(n, byID, firstTarget, walked)
		}
	}

	// 5. failsCount configurado debe ser numérico; en runtime caería al
	// default silenciosamente y el operador nunca vería su límite aplicado
	for i := range nodes {
		n := &nodes[i]
		av := AnswerValidationOf(n)
		if av == nil || av.FailsCount == "" {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(av.FailsCount)); err != nil {
			violations = append(violations, fmt.Sprintf("node %q has non-numeric failsCount %q", n.NodeID, av.FailsCount))
		}
	}

	return violations
}

// selectorIDsOfNode lists the synthetic edge-source ids a node exposes.
func selectorIDsOfNode(n *Node) []string {
	var ids []string
	switch n.Type {
	case NodeTypeCondition:
		if cfg, err := ExtractConditionConfig(n.Data); err == nil {
			ids = append(ids, cfg.TrueSelector(), cfg.FalseSelector())
		}
	case NodeTypeDelay:
		if cfg, err := ExtractDelayConfig(n.Data); err == nil {
			ids = append(ids, cfg.InterruptedSelector(), cfg.NotInterruptedSelector())
		}
	}
	for _, a := range ExpectedAnswersOf(n) {
		ids = append(ids, a.ID)
	}
	return ids
}

func inChainCycle(start *Node, byID map[string]*Node, firstTarget map[string]string) bool {
	seen := map[string]bool{start.NodeID.String(): true}
	cur := start
	for {
		next, ok := byID[firstTarget[cur.NodeID.String()]]
		if !ok || !next.Type.AutoChains() {
			return false
		}
		if seen[next.NodeID.String()] {
			return true
		}
		seen[next.NodeID.String()] = true
		cur = next
	}
}

func markCycleWalked(start *Node, byID map[string]*Node, firstTarget map[string]string, walked map[string]bool) {
	cur := start
	for {
		if walked[cur.NodeID.String()] {
			return
		}
		walked[cur.NodeID.String()] = true
		next, ok := byID[firstTarget[cur.NodeID.String()]]
		if !ok || !next.Type.AutoChains() {
			return
		}
		cur = next
	}
}
