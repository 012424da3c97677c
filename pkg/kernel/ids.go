package kernel

import "github.com/google/uuid"

type FlowID string

func NewFlowID() FlowID         { return FlowID(uuid.New().String()) }
func (f FlowID) String() string { return string(f) }
func (f FlowID) IsEmpty() bool  { return string(f) == "" }

// NodeID and EdgeID come from the flow builder, never generated here.
type NodeID string

func (n NodeID) String() string { return string(n) }
func (n NodeID) IsEmpty() bool  { return string(n) == "" }

type EdgeID string

func (e EdgeID) String() string { return string(e) }
func (e EdgeID) IsEmpty() bool  { return string(e) == "" }

type TriggerID string

func NewTriggerID() TriggerID      { return TriggerID(uuid.New().String()) }
func (t TriggerID) String() string { return string(t) }
func (t TriggerID) IsEmpty() bool  { return string(t) == "" }

type UserStateID string

func NewUserStateID() UserStateID    { return UserStateID(uuid.New().String()) }
func (u UserStateID) String() string { return string(u) }
func (u UserStateID) IsEmpty() bool  { return string(u) == "" }

type DelayID string

func NewDelayID() DelayID        { return DelayID(uuid.New().String()) }
func (d DelayID) String() string { return string(d) }
func (d DelayID) IsEmpty() bool  { return string(d) == "" }

type WebhookID string

func NewWebhookID() WebhookID      { return WebhookID(uuid.New().String()) }
func (w WebhookID) String() string { return string(w) }
func (w WebhookID) IsEmpty() bool  { return string(w) == "" }

type TransactionID string

func NewTransactionID() TransactionID  { return TransactionID(uuid.New().String()) }
func (t TransactionID) String() string { return string(t) }
func (t TransactionID) IsEmpty() bool  { return string(t) == "" }

type ScheduleID string

func NewScheduleID() ScheduleID     { return ScheduleID(uuid.New().String()) }
func (s ScheduleID) String() string { return string(s) }
func (s ScheduleID) IsEmpty() bool  { return string(s) == "" }

type APIKeyID string

func NewAPIKeyID() APIKeyID       { return APIKeyID(uuid.New().String()) }
func (a APIKeyID) String() string { return string(a) }
func (a APIKeyID) IsEmpty() bool  { return string(a) == "" }
