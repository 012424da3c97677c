package recorder

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// Recorder guarda una UserTransaction por cada nodo procesado durante un
// recorrido. La bitácora es best-effort: un fallo de escritura se loguea y el
// recorrido sigue.
type Recorder struct {
	transactions engine.TransactionRepository
}

func NewRecorder(transactions engine.TransactionRepository) *Recorder {
	return &Recorder{transactions: transactions}
}

// Entry es el registro de un nodo procesado.
type Entry struct {
	FlowID         kernel.FlowID
	NodeID         kernel.NodeID
	NodeType       flow.NodeType
	NodeData       map[string]any
	ProcessedValue any
	UserIdentifier string
	UserDetail     *engine.UserDetail
}

// Record persists the entry with processed_status success.
func (r *Recorder) Record(ctx context.Context, meta engine.Metadata, e Entry) {
	tx := engine.UserTransaction{
		ID:               kernel.NewTransactionID(),
		UserIdentifier:   e.UserIdentifier,
		BrandID:          meta.BrandID,
		FlowID:           e.FlowID,
		NodeID:           e.NodeID,
		NodeType:         string(e.NodeType),
		Channel:          meta.Channel,
		ChannelAccountID: meta.ChannelAccountID,
		ProcessedStatus:  engine.TransactionStatusSuccess,
		ProcessedValue:   e.ProcessedValue,
		NodeData:         e.NodeData,
		UserDetail:       detailMap(e.UserDetail),
		CreatedAt:        time.Now().UTC(),
	}

	if err := r.transactions.Save(ctx, tx); err != nil {
		log.Printf("⚠️  Failed to record transaction for node %s: %v", e.NodeID, err)
		return
	}

	log.Printf("📝 Recorded transaction: node=%s type=%s user=%s", e.NodeID, e.NodeType, e.UserIdentifier)
}

func detailMap(d *engine.UserDetail) map[string]any {
	out := map[string]any{}
	if d == nil {
		return out
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
