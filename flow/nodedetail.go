package flow

// ============================================================================
// Node Detail Catalog
// ============================================================================

// NodeCategory agrupa los tipos de nodo para el editor
type NodeCategory string

const (
	CategoryTrigger   NodeCategory = "Trigger"
	CategoryAction    NodeCategory = "Action"
	CategoryCondition NodeCategory = "Condition"
	CategoryDelay     NodeCategory = "Delay"
)

// ValidCategory reports whether the given string names a known category.
func ValidCategory(s string) bool {
	switch NodeCategory(s) {
	case CategoryTrigger, CategoryAction, CategoryCondition, CategoryDelay:
		return true
	}
	return false
}

// NodeDetail describes one node type: whether the automation must wait for a
// reply on it and whether the engine processes it in-process instead of
// dispatching to a channel service. NodeID holds the type string, matching
// the catalog the editor consumes.
type NodeDetail struct {
	NodeID            NodeType     `db:"node_id" json:"node_id"`
	NodeName          string       `db:"node_name" json:"node_name"`
	Category          NodeCategory `db:"category" json:"category"`
	UserInputRequired bool         `db:"user_input_required" json:"user_input_required"`
	IsInternal        bool         `db:"is_internal" json:"is_internal"`
}

// CatalogSeed is the canonical node catalog; Seed() upserts it at startup.
func CatalogSeed() []NodeDetail {
	return []NodeDetail{
		{NodeID: NodeTypeTriggerKeyword, NodeName: "Keyword Trigger", Category: CategoryTrigger, UserInputRequired: false, IsInternal: false},
		{NodeID: NodeTypeTriggerTemplate, NodeName: "Template Trigger", Category: CategoryTrigger, UserInputRequired: false, IsInternal: false},
		{NodeID: NodeTypeMessage, NodeName: "Send A Message", Category: CategoryAction, UserInputRequired: false, IsInternal: false},
		{NodeID: NodeTypeQuestion, NodeName: "Text Question", Category: CategoryAction, UserInputRequired: true, IsInternal: false},
		{NodeID: NodeTypeButtonQuestion, NodeName: "Button Question", Category: CategoryAction, UserInputRequired: true, IsInternal: false},
		{NodeID: NodeTypeListQuestion, NodeName: "List Question", Category: CategoryAction, UserInputRequired: true, IsInternal: false},
		{NodeID: NodeTypeCondition, NodeName: "Condition", Category: CategoryCondition, UserInputRequired: false, IsInternal: true},
		{NodeID: NodeTypeDelay, NodeName: "Delay", Category: CategoryDelay, UserInputRequired: false, IsInternal: true},
		{NodeID: NodeTypeSendTemplate, NodeName: "Send Template", Category: CategoryAction, UserInputRequired: false, IsInternal: false},
		{NodeID: NodeTypeSendEmailTemplate, NodeName: "Send Email Template", Category: CategoryAction, UserInputRequired: false, IsInternal: false},
	}
}

// Catalog is an immutable in-memory view of node details, used on the hot
// path so every walk does not hit the database.
type Catalog struct {
	byType map[NodeType]NodeDetail
}

// NewCatalog indexes the given details.
func NewCatalog(details []NodeDetail) *Catalog {
	byType := make(map[NodeType]NodeDetail, len(details))
	for _, d := range details {
		byType[d.NodeID] = d
	}
	return &Catalog{byType: byType}
}

// Detail returns the catalog entry for a node type.
func (c *Catalog) Detail(t NodeType) (NodeDetail, bool) {
	d, ok := c.byType[t]
	return d, ok
}

// IsInternal reports whether the engine processes this type in-process.
func (c *Catalog) IsInternal(t NodeType) bool {
	d, ok := c.byType[t]
	return ok && d.IsInternal
}

// RequiresUserInput reports whether the automation parks on this type.
func (c *Catalog) RequiresUserInput(t NodeType) bool {
	d, ok := c.byType[t]
	if !ok {
		return t.RequiresUserInput()
	}
	return d.UserInputRequired
}
