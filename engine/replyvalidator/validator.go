package replyvalidator

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// Outcome clasifica la respuesta del usuario frente al nodo actual.
type Outcome string

const (
	// La respuesta coincidió con una respuesta esperada del nodo actual.
	OutcomeMatched Outcome = "matched"
	// La respuesta coincidió con un botón/lista de otro nodo del flujo.
	OutcomeMatchedOtherNode Outcome = "matched_other_node"
	// La respuesta no valida; reintentar el nodo con el fallback.
	OutcomeMismatchRetry Outcome = "mismatch_retry"
	// Se agotó el límite de reintentos; enviar solo el fallback.
	OutcomeValidationExit Outcome = "validation_exit"
	// Avanzar por la primera arista del nodo actual.
	OutcomeUseDefaultEdge Outcome = "use_default_edge"
)

// Result carries the outcome plus whichever id or message the orchestrator
// needs to act on it.
type Result struct {
	Outcome         Outcome
	MatchedAnswerID string
	MatchedNodeID   kernel.NodeID
	FallbackMessage string
}

// Input es todo lo que la validación necesita del estado actual.
type Input struct {
	Graph          *flow.Graph
	Node           *flow.Node
	UserIdentifier string
	UserReply      string
	IsText         bool
	FailureCount   int
}

// Validator valida la respuesta del usuario contra el nodo donde está
// parqueado. Solo escribe estado en un caso: cuando una pregunta de texto
// pasa la validación y el nodo captura la respuesta en una variable.
type Validator struct {
	contexts engine.FlowUserContextRepository
}

func NewValidator(contexts engine.FlowUserContextRepository) *Validator {
	return &Validator{contexts: contexts}
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneStrip   = regexp.MustCompile(`[\s\-()+]`)
)

// Validate clasifica la respuesta. El contador de fallos NO se toca aquí; el
// orquestador lo incrementa o resetea según el outcome.
func (v *Validator) Validate(ctx context.Context, meta engine.Metadata, in Input) (*Result, error) {
	if strings.TrimSpace(in.UserReply) == "" {
		return nil, errx.New("user reply not found in message", errx.TypeValidation)
	}
	if in.Graph == nil || in.Graph.Flow == nil {
		return nil, errx.New("flow not loaded for validation", errx.TypeInternal)
	}
	if len(in.Graph.Edges) == 0 {
		return nil, errx.New("flow has no edges", errx.TypeInternal)
	}
	if in.Node == nil {
		return nil, errx.New("current node not found in flow", errx.TypeInternal)
	}

	log.Printf("🔍 [VALIDATE_REPLY] node=%s type=%s reply='%s' is_text=%v failures=%d",
		in.Node.NodeID, in.Node.Type, in.UserReply, in.IsText, in.FailureCount)

	// Paso 1: match directo contra las respuestas esperadas del nodo actual
	if answerID := matchExpectedAnswer(in.Node, in.UserReply); answerID != "" {
		log.Printf("✅ [VALIDATE_REPLY] Reply matched answer %s on current node", answerID)
		return &Result{Outcome: OutcomeMatched, MatchedAnswerID: answerID}, nil
	}

	// Paso 2: preguntas de texto libre validan contra answerValidation
	if in.IsText {
		return v.validateText(ctx, meta, in)
	}

	// Paso 3: la respuesta puede ser el texto de un botón de otro nodo
	if nodeID := matchOtherNode(in.Graph, in.UserReply); !nodeID.IsEmpty() {
		log.Printf("🔀 [VALIDATE_REPLY] Reply matched answer on another node: %s", nodeID)
		return &Result{Outcome: OutcomeMatchedOtherNode, MatchedNodeID: nodeID}, nil
	}

	// Paso 4: botones y listas reintentan hasta agotar el límite
	if in.Node.Type == flow.NodeTypeButtonQuestion || in.Node.Type == flow.NodeTypeListQuestion {
		av := validationOf(in.Node)
		fallback := av.FallbackOrDefault()
		if in.FailureCount >= av.FailsCountOrDefault() {
			log.Printf("🛑 [VALIDATE_REPLY] Validation limit reached (%d/%d) for user %s",
				in.FailureCount, av.FailsCountOrDefault(), in.UserIdentifier)
			return &Result{Outcome: OutcomeValidationExit, FallbackMessage: fallback}, nil
		}
		log.Printf("🔁 [VALIDATE_REPLY] Reply mismatch (%d/%d), retrying node %s",
			in.FailureCount+1, av.FailsCountOrDefault(), in.Node.NodeID)
		return &Result{Outcome: OutcomeMismatchRetry, FallbackMessage: fallback}, nil
	}

	// Otros tipos no validan nada
	return &Result{Outcome: OutcomeUseDefaultEdge}, nil
}

// validateText aplica las reglas de answerValidation a una pregunta de texto
// y guarda la variable capturada cuando pasa.
func (v *Validator) validateText(ctx context.Context, meta engine.Metadata, in Input) (*Result, error) {
	cfg, err := flow.ExtractQuestionConfig(in.Node.Data)
	if err != nil {
		log.Printf("⚠️  [VALIDATE_REPLY] Could not extract question config for node %s: %v", in.Node.NodeID, err)
		cfg = &flow.QuestionConfig{}
	}
	av := cfg.AnswerValidation

	if !passesTextRules(av, in.UserReply) {
		fallback := av.FallbackOrDefault()
		if in.FailureCount >= av.FailsCountOrDefault() {
			log.Printf("🛑 [VALIDATE_REPLY] Text validation limit reached (%d/%d) for user %s",
				in.FailureCount, av.FailsCountOrDefault(), in.UserIdentifier)
			return &Result{Outcome: OutcomeValidationExit, FallbackMessage: fallback}, nil
		}
		log.Printf("🔁 [VALIDATE_REPLY] Text validation failed (%d/%d) for user %s",
			in.FailureCount+1, av.FailsCountOrDefault(), in.UserIdentifier)
		return &Result{Outcome: OutcomeMismatchRetry, FallbackMessage: fallback}, nil
	}

	if cfg.UserInputVariable != "" {
		fuc := engine.FlowUserContext{
			UserIdentifier: in.UserIdentifier,
			BrandID:        meta.BrandID,
			FlowID:         in.Graph.Flow.ID,
			VariableName:   cfg.UserInputVariable,
			VariableValue:  in.UserReply,
			NodeID:         in.Node.NodeID,
			UpdatedAt:      time.Now().UTC(),
		}
		if err := v.contexts.UpsertVariable(ctx, fuc); err != nil {
			return nil, errx.Wrap(err, "failed to save flow variable", errx.TypeInternal).
				WithDetail("variable", cfg.UserInputVariable)
		}
		log.Printf("💾 [VALIDATE_REPLY] Saved variable %s='%s' for user %s", cfg.UserInputVariable, in.UserReply, in.UserIdentifier)
	}

	return &Result{Outcome: OutcomeUseDefaultEdge}, nil
}

// matchExpectedAnswer compara la respuesta contra las respuestas esperadas
// del nodo. Solo aplica a tipos que llevan expectedAnswers.
func matchExpectedAnswer(node *flow.Node, reply string) string {
	switch node.Type {
	case flow.NodeTypeTriggerTemplate, flow.NodeTypeButtonQuestion, flow.NodeTypeListQuestion:
	default:
		return ""
	}
	for _, answer := range flow.ExpectedAnswersOf(node) {
		if answer.ExpectedInput == "" {
			continue
		}
		if strings.EqualFold(answer.ExpectedInput, reply) {
			return answer.ID
		}
	}
	return ""
}

// matchOtherNode busca la respuesta entre los botones y listas de todo el
// flujo. Devuelve el nodo dueño solo cuando su respuesta tiene arista de
// salida; sin arista no hay a dónde avanzar.
func matchOtherNode(g *flow.Graph, reply string) kernel.NodeID {
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.Type != flow.NodeTypeButtonQuestion && node.Type != flow.NodeTypeListQuestion {
			continue
		}
		for _, answer := range flow.ExpectedAnswersOf(node) {
			if answer.ExpectedInput == "" || !strings.EqualFold(answer.ExpectedInput, reply) {
				continue
			}
			if g.FirstEdgeFrom(answer.ID) == nil {
				return ""
			}
			return node.NodeID
		}
	}
	return ""
}

// passesTextRules applies the configured validation to a free-text reply.
// Broken Text limits and regex patterns that do not compile only warn, so
// flows with bad config keep accepting replies instead of trapping the user.
// A broken Number bound rejects the reply: a numeric rule that cannot be
// checked must not silently pass.
func passesTextRules(av *flow.AnswerValidation, reply string) bool {
	if av == nil {
		return true
	}
	trimmed := strings.TrimSpace(reply)

	switch av.Type {
	case flow.ValidationTypeNumber:
		num, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			log.Printf("🚫 [VALIDATE_REPLY] Reply '%s' is not a valid number", reply)
			return false
		}
		if minRaw := strings.TrimSpace(av.MinValue); minRaw != "" {
			minNum, err := strconv.ParseFloat(minRaw, 64)
			if err != nil {
				log.Printf("⚠️  [VALIDATE_REPLY] Invalid minValue '%s': %v", av.MinValue, err)
				return false
			}
			if num < minNum {
				log.Printf("🚫 [VALIDATE_REPLY] Number %v below minimum %s", num, minRaw)
				return false
			}
		}
		if maxRaw := strings.TrimSpace(av.MaxValue); maxRaw != "" {
			maxNum, err := strconv.ParseFloat(maxRaw, 64)
			if err != nil {
				log.Printf("⚠️  [VALIDATE_REPLY] Invalid maxValue '%s': %v", av.MaxValue, err)
				return false
			}
			if num > maxNum {
				log.Printf("🚫 [VALIDATE_REPLY] Number %v above maximum %s", num, maxRaw)
				return false
			}
		}

	case flow.ValidationTypeText:
		length := utf8.RuneCountInString(reply)
		if minRaw := strings.TrimSpace(av.MinValue); minRaw != "" {
			if minLen, err := strconv.Atoi(minRaw); err != nil {
				log.Printf("⚠️  [VALIDATE_REPLY] Invalid minValue for Text validation: %s", av.MinValue)
			} else if length < minLen {
				log.Printf("🚫 [VALIDATE_REPLY] Text length %d below minimum %d", length, minLen)
				return false
			}
		}
		if maxRaw := strings.TrimSpace(av.MaxValue); maxRaw != "" {
			if maxLen, err := strconv.Atoi(maxRaw); err != nil {
				log.Printf("⚠️  [VALIDATE_REPLY] Invalid maxValue for Text validation: %s", av.MaxValue)
			} else if length > maxLen {
				log.Printf("🚫 [VALIDATE_REPLY] Text length %d above maximum %d", length, maxLen)
				return false
			}
		}

	case flow.ValidationTypeEmail:
		if !emailPattern.MatchString(trimmed) {
			log.Printf("🚫 [VALIDATE_REPLY] Reply '%s' failed email validation", reply)
			return false
		}

	case flow.ValidationTypePhone:
		cleaned := phoneStrip.ReplaceAllString(trimmed, "")
		if len(cleaned) < 7 || !allDigits(cleaned) {
			log.Printf("🚫 [VALIDATE_REPLY] Reply '%s' failed phone validation", reply)
			return false
		}
	}

	if pattern := strings.TrimSpace(av.Regex); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Printf("⚠️  [VALIDATE_REPLY] Invalid regex pattern '%s': %v", pattern, err)
		} else if !re.MatchString(reply) {
			log.Printf("🚫 [VALIDATE_REPLY] Reply '%s' failed regex validation: %s", reply, pattern)
			return false
		}
	}

	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// validationOf extracts answerValidation from a button or list question.
func validationOf(n *flow.Node) *flow.AnswerValidation {
	switch n.Type {
	case flow.NodeTypeButtonQuestion:
		if cfg, err := flow.ExtractButtonQuestionConfig(n.Data); err == nil {
			return cfg.AnswerValidation
		}
	case flow.NodeTypeListQuestion:
		if cfg, err := flow.ExtractListQuestionConfig(n.Data); err == nil {
			return cfg.AnswerValidation
		}
	case flow.NodeTypeQuestion:
		if cfg, err := flow.ExtractQuestionConfig(n.Data); err == nil {
			return cfg.AnswerValidation
		}
	}
	return nil
}
