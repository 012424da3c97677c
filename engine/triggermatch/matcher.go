package triggermatch

import (
	"context"
	"log"
	"strings"

	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// Matcher decide si un mensaje entrante arranca un flujo. Recorre los
// triggers de la marca en orden de inserción y gana el primero que matchea.
type Matcher struct {
	flows flow.FlowRepository
}

func NewMatcher(flows flow.FlowRepository) *Matcher {
	return &Matcher{flows: flows}
}

// Match es el trigger ganador, ya verificado contra un flujo publicado.
type Match struct {
	FlowID        kernel.FlowID
	TriggerNodeID kernel.NodeID
	TriggerType   flow.TriggerType
}

// Match returns the first trigger whose values match the reply text, or nil
// when nothing matches. Keyword triggers are substring matches and only apply
// to plain text messages; template triggers are exact matches and apply to
// any message type, so button titles can fire them too. Both comparisons are
// case-insensitive.
func (m *Matcher) Match(ctx context.Context, brandID int64, messageType, text string) (*Match, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	lowered := strings.ToLower(text)

	triggers, err := m.flows.FindTriggersByBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}

	log.Printf("🔍 [TRIGGER_CHECK] Checking %d trigger(s) for brand %d against text '%s'", len(triggers), brandID, text)

	for _, trigger := range triggers {
		if !m.matches(trigger, messageType, lowered) {
			continue
		}

		log.Printf("🎯 [TRIGGER_CHECK] Trigger matched: type=%s flow=%s node=%s", trigger.Type, trigger.FlowID, trigger.NodeID)

		// El trigger puede apuntar a un flujo borrado o despublicado; solo
		// los publicados arrancan.
		f, err := m.flows.FindByID(ctx, trigger.FlowID)
		if err != nil {
			return nil, err
		}
		if !f.IsPublished() {
			log.Printf("⚠️  [TRIGGER_CHECK] Flow %s matched but is not published (status=%s), skipping automation", f.ID, f.Status)
			return nil, nil
		}

		return &Match{
			FlowID:        trigger.FlowID,
			TriggerNodeID: trigger.NodeID,
			TriggerType:   trigger.Type,
		}, nil
	}

	log.Printf("💤 [TRIGGER_CHECK] No trigger matched for brand %d", brandID)
	return nil, nil
}

func (m *Matcher) matches(trigger flow.Trigger, messageType, lowered string) bool {
	switch trigger.Type {
	case flow.TriggerTypeKeyword:
		if messageType != "text" {
			return false
		}
		for _, keyword := range trigger.Values {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return true
			}
		}
	case flow.TriggerTypeTemplate:
		for _, value := range trigger.Values {
			if value == "" {
				continue
			}
			if strings.EqualFold(value, lowered) {
				return true
			}
		}
	}
	return false
}
