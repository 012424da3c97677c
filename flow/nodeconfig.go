package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Node Config Interface
// ============================================================================

// NodeConfig interface that all typed node payloads implement
type NodeConfig interface {
	Validate() error
	GetType() NodeType
}

// FlexInt tolerates both JSON numbers and numeric strings; the flow builder
// has emitted durations in both shapes.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	*f = FlexInt(int(v))
	return nil
}

func (f FlexInt) Int() int { return int(f) }

// ============================================================================
// Shared payload pieces (field names mirror the builder output)
// ============================================================================

// Reply is one outgoing message part of a message/question node.
type Reply struct {
	FlowReplyType string `json:"flowReplyType,omitempty"` // text, image, video, audio, document
	Data          string `json:"data,omitempty"`
	Caption       string `json:"caption,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
}

// AnswerValidation rules for free-text answers. Numeric bounds and the fail
// cap arrive as strings from the builder.
type AnswerValidation struct {
	Type       string `json:"type,omitempty"` // Number, Text, Email, Phone
	MinValue   string `json:"minValue,omitempty"`
	MaxValue   string `json:"maxValue,omitempty"`
	Regex      string `json:"regex,omitempty"`
	Fallback   string `json:"fallback,omitempty"`
	FailsCount string `json:"failsCount,omitempty"`
}

const (
	ValidationTypeNumber = "Number"
	ValidationTypeText   = "Text"
	ValidationTypeEmail  = "Email"
	ValidationTypePhone  = "Phone"
)

// DefaultFallbackMessage is sent when an answer fails validation and the node
// configures no fallback of its own.
const DefaultFallbackMessage = "This is not the valid response. Please try again below"

// DefaultFailsCount caps validation retries when the node does not set one.
const DefaultFailsCount = 3

// FailsCountOrDefault parses the configured cap, falling back when it is
// absent or unparseable.
func (v *AnswerValidation) FailsCountOrDefault() int {
	if v == nil || v.FailsCount == "" {
		return DefaultFailsCount
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.FailsCount))
	if err != nil || n <= 0 {
		return DefaultFailsCount
	}
	return n
}

// FallbackOrDefault returns the configured fallback message or the default.
func (v *AnswerValidation) FallbackOrDefault() string {
	if v == nil || strings.TrimSpace(v.Fallback) == "" {
		return DefaultFallbackMessage
	}
	return strings.TrimSpace(v.Fallback)
}

// ExpectedAnswer is one button/list option or template answer.
type ExpectedAnswer struct {
	ID            string `json:"id,omitempty"`
	ExpectedInput string `json:"expectedInput,omitempty"`
	IsDefault     bool   `json:"isDefault,omitempty"`
	NodeResultID  string `json:"nodeResultId,omitempty"`
}

// InteractiveButtonsHeader optional header of a button question.
type InteractiveButtonsHeader struct {
	Type  string `json:"type,omitempty"`
	Text  string `json:"text,omitempty"`
	Media string `json:"media,omitempty"`
}

// NodeCondition is a single comparison inside a condition node.
type NodeCondition struct {
	ID                string `json:"id,omitempty"`
	FlowConditionType string `json:"flowConditionType,omitempty"`
	Variable          string `json:"variable,omitempty"`
	Value             string `json:"value,omitempty"`
}

const (
	ConditionEqual       = "Equal"
	ConditionNotEqual    = "NotEqual"
	ConditionContains    = "Contains"
	ConditionNotContains = "NotContains"
	ConditionGreaterThan = "GreaterThan"
	ConditionLessThan    = "LessThan"
)

const (
	ConditionOperatorAnd  = "AND"
	ConditionOperatorOr   = "OR"
	ConditionOperatorNone = "None"
)

// SelectorRef is a branch handle the builder attaches to condition and delay
// nodes; its ID doubles as an edge source id.
type SelectorRef struct {
	ID           string `json:"id,omitempty"`
	NodeResultID string `json:"nodeResultId,omitempty"`
}

// ============================================================================
// Trigger Keyword Config
// ============================================================================

type TriggerKeywordConfig struct {
	TriggerKeywords []string `json:"triggerKeywords,omitempty"`
	IsStartNode     bool     `json:"isStartNode,omitempty"`
}

func (c TriggerKeywordConfig) Validate() error {
	if len(c.TriggerKeywords) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "triggerKeywords is required")
	}
	return nil
}

func (c TriggerKeywordConfig) GetType() NodeType { return NodeTypeTriggerKeyword }

// ============================================================================
// Trigger Template Config
// ============================================================================

type TriggerTemplateConfig struct {
	TriggerTemplateID   string           `json:"triggerTemplateId,omitempty"`
	TriggerTemplateName string           `json:"triggerTemplateName,omitempty"`
	ExpectedAnswers     []ExpectedAnswer `json:"expectedAnswers,omitempty"`
	IsStartNode         bool             `json:"isStartNode,omitempty"`
}

func (c TriggerTemplateConfig) Validate() error {
	if len(c.TriggerValues()) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "expectedAnswers must carry at least one expectedInput")
	}
	return nil
}

func (c TriggerTemplateConfig) GetType() NodeType { return NodeTypeTriggerTemplate }

// TriggerValues returns the non-empty expected inputs that arm the trigger.
func (c TriggerTemplateConfig) TriggerValues() []string {
	var out []string
	for _, a := range c.ExpectedAnswers {
		if v := strings.TrimSpace(a.ExpectedInput); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ============================================================================
// Message Config
// ============================================================================

type MessageConfig struct {
	FlowReplies []Reply `json:"flowReplies,omitempty"`
}

func (c MessageConfig) Validate() error {
	if len(c.FlowReplies) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "flowReplies is required")
	}
	return nil
}

func (c MessageConfig) GetType() NodeType { return NodeTypeMessage }

// ============================================================================
// Question Config
// ============================================================================

type QuestionConfig struct {
	FlowReplies       []Reply           `json:"flowReplies,omitempty"`
	UserInputVariable string            `json:"userInputVariable,omitempty"`
	AnswerValidation  *AnswerValidation `json:"answerValidation,omitempty"`
	IsMediaAccepted   bool              `json:"isMediaAccepted,omitempty"`
	ExpectedAnswers   []ExpectedAnswer  `json:"expectedAnswers,omitempty"`
}

func (c QuestionConfig) Validate() error {
	if len(c.FlowReplies) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "flowReplies is required")
	}
	return nil
}

func (c QuestionConfig) GetType() NodeType { return NodeTypeQuestion }

// ============================================================================
// Button Question Config
// ============================================================================

type ButtonQuestionConfig struct {
	Header              *InteractiveButtonsHeader `json:"interactiveButtonsHeader,omitempty"`
	Body                string                    `json:"interactiveButtonsBody,omitempty"`
	Footer              string                    `json:"interactiveButtonsFooter,omitempty"`
	UserInputVariable   string                    `json:"interactiveButtonsUserInputVariable,omitempty"`
	DefaultNodeResultID string                    `json:"interactiveButtonsDefaultNodeResultId,omitempty"`
	ExpectedAnswers     []ExpectedAnswer          `json:"expectedAnswers,omitempty"`
	AnswerValidation    *AnswerValidation         `json:"answerValidation,omitempty"`
}

func (c ButtonQuestionConfig) Validate() error {
	if len(c.ExpectedAnswers) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "expectedAnswers is required")
	}
	return nil
}

func (c ButtonQuestionConfig) GetType() NodeType { return NodeTypeButtonQuestion }

// ============================================================================
// List Question Config
// ============================================================================

type ListQuestionConfig struct {
	FlowReplies       []Reply           `json:"flowReplies,omitempty"`
	UserInputVariable string            `json:"userInputVariable,omitempty"`
	AnswerValidation  *AnswerValidation `json:"answerValidation,omitempty"`
	IsMediaAccepted   bool              `json:"isMediaAccepted,omitempty"`
	ExpectedAnswers   []ExpectedAnswer  `json:"expectedAnswers,omitempty"`
}

func (c ListQuestionConfig) Validate() error {
	if len(c.ExpectedAnswers) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "expectedAnswers is required")
	}
	return nil
}

func (c ListQuestionConfig) GetType() NodeType { return NodeTypeListQuestion }

// ============================================================================
// Condition Config
// ============================================================================

type ConditionConfig struct {
	FlowNodeConditions []NodeCondition `json:"flowNodeConditions,omitempty"`
	ConditionResult    []SelectorRef   `json:"conditionResult,omitempty"`
	ConditionOperator  string          `json:"conditionOperator,omitempty"`
}

func (c ConditionConfig) Validate() error {
	if len(c.FlowNodeConditions) == 0 {
		return ErrInvalidNodeData().WithDetail("reason", "flowNodeConditions is required")
	}
	if c.TrueSelector() == "" || c.FalseSelector() == "" {
		return ErrInvalidNodeData().WithDetail("reason", "conditionResult must carry __true and __false branch ids")
	}
	return nil
}

func (c ConditionConfig) GetType() NodeType { return NodeTypeCondition }

// Operator returns the configured combinator, defaulting to None (all must
// match, same as AND).
func (c ConditionConfig) Operator() string {
	if c.ConditionOperator == "" {
		return ConditionOperatorNone
	}
	return c.ConditionOperator
}

func (c ConditionConfig) selectorIDs() []string {
	ids := make([]string, 0, len(c.ConditionResult))
	for _, r := range c.ConditionResult {
		ids = append(ids, r.ID)
	}
	return ids
}

// TrueSelector returns the branch id taken when the condition holds.
func (c ConditionConfig) TrueSelector() string {
	return SelectorFor(c.selectorIDs(), SelectorSuffixTrue)
}

// FalseSelector returns the branch id taken when the condition fails.
func (c ConditionConfig) FalseSelector() string {
	return SelectorFor(c.selectorIDs(), SelectorSuffixFalse)
}

// ============================================================================
// Delay Config
// ============================================================================

type DelayConfig struct {
	ID             string        `json:"id,omitempty"`
	DelayDuration  FlexInt       `json:"delayDuration,omitempty"`
	DelayUnit      string        `json:"delayUnit,omitempty"`
	WaitForReply   bool          `json:"waitForReply,omitempty"`
	DelayInterrupt bool          `json:"delayInterrupt,omitempty"`
	DelayResult    []SelectorRef `json:"delayResult,omitempty"`
}

const (
	DelayUnitSeconds = "seconds"
	DelayUnitMinutes = "minutes"
	DelayUnitHours   = "hours"
	DelayUnitDays    = "days"
)

func (c DelayConfig) Validate() error {
	if c.DelayDuration.Int() <= 0 {
		return ErrInvalidNodeData().WithDetail("reason", "delayDuration must be positive")
	}
	return nil
}

func (c DelayConfig) GetType() NodeType { return NodeTypeDelay }

// Unit returns the configured unit, defaulting to minutes.
func (c DelayConfig) Unit() string {
	if c.DelayUnit == "" {
		return DelayUnitMinutes
	}
	return c.DelayUnit
}

// WaitSeconds converts the configured duration to seconds. Unknown units are
// treated as seconds, mirroring the builder's oldest payloads.
func (c DelayConfig) WaitSeconds() int64 {
	d := int64(c.DelayDuration.Int())
	switch c.Unit() {
	case DelayUnitMinutes:
		return d * 60
	case DelayUnitHours:
		return d * 3600
	case DelayUnitDays:
		return d * 86400
	}
	return d
}

func (c DelayConfig) selectorIDs() []string {
	ids := make([]string, 0, len(c.DelayResult))
	for _, r := range c.DelayResult {
		ids = append(ids, r.ID)
	}
	return ids
}

// InterruptedSelector returns the branch id taken when the user replies
// during the delay.
func (c DelayConfig) InterruptedSelector() string {
	return SelectorFor(c.selectorIDs(), SelectorSuffixInterrupted)
}

// NotInterruptedSelector returns the branch id taken when the delay runs out.
func (c DelayConfig) NotInterruptedSelector() string {
	return SelectorFor(c.selectorIDs(), SelectorSuffixNotInterrupted)
}

// ============================================================================
// Send Email Template Config
// ============================================================================

// SendEmailTemplateConfig payload de un nodo send_email_template. El builder
// guarda el source email con dos claves distintas según la versión.
type SendEmailTemplateConfig struct {
	ID                   string `json:"id,omitempty"`
	EmailTemplateMongoID string `json:"emailTemplateMongoId,omitempty"`
	EmailTemplateName    string `json:"emailTemplateName,omitempty"`
	SourceEmail          string `json:"sourceEmail,omitempty"`
	SourceEmailSnake     string `json:"source_email,omitempty"`
	ConfigurationSetName string `json:"configurationSetName,omitempty"`
}

func (c SendEmailTemplateConfig) Validate() error {
	if c.EmailTemplateMongoID == "" {
		return fmt.Errorf("emailTemplateMongoId is required in send_email_template node")
	}
	return nil
}

func (c SendEmailTemplateConfig) GetType() NodeType { return NodeTypeSendEmailTemplate }

// TemplateName prefers the readable name over the template record id.
func (c SendEmailTemplateConfig) TemplateName() string {
	if c.EmailTemplateName != "" {
		return c.EmailTemplateName
	}
	return c.EmailTemplateMongoID
}

// ConfiguredSourceEmail returns the source address embedded in the node, or
// empty when the flow settings lookup should supply it.
func (c SendEmailTemplateConfig) ConfiguredSourceEmail() string {
	if c.SourceEmail != "" {
		return c.SourceEmail
	}
	return c.SourceEmailSnake
}

// ============================================================================
// Helper Functions for Config Extraction
// ============================================================================

func extractConfig(data map[string]any, out NodeConfig) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal node data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", out.GetType(), err)
	}
	return nil
}

// ExtractTriggerKeywordConfig extracts and validates a keyword trigger payload
func ExtractTriggerKeywordConfig(data map[string]any) (*TriggerKeywordConfig, error) {
	var cfg TriggerKeywordConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractTriggerTemplateConfig extracts and validates a template trigger payload
func ExtractTriggerTemplateConfig(data map[string]any) (*TriggerTemplateConfig, error) {
	var cfg TriggerTemplateConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractMessageConfig extracts and validates a message payload
func ExtractMessageConfig(data map[string]any) (*MessageConfig, error) {
	var cfg MessageConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractQuestionConfig extracts and validates a question payload
func ExtractQuestionConfig(data map[string]any) (*QuestionConfig, error) {
	var cfg QuestionConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractButtonQuestionConfig extracts and validates an interactive buttons payload
func ExtractButtonQuestionConfig(data map[string]any) (*ButtonQuestionConfig, error) {
	var cfg ButtonQuestionConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractListQuestionConfig extracts and validates a list question payload
func ExtractListQuestionConfig(data map[string]any) (*ListQuestionConfig, error) {
	var cfg ListQuestionConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractConditionConfig extracts and validates a condition payload
func ExtractConditionConfig(data map[string]any) (*ConditionConfig, error) {
	var cfg ConditionConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractDelayConfig extracts and validates a delay payload
func ExtractDelayConfig(data map[string]any) (*DelayConfig, error) {
	var cfg DelayConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExtractSendEmailTemplateConfig extracts and validates an email template payload
func ExtractSendEmailTemplateConfig(data map[string]any) (*SendEmailTemplateConfig, error) {
	var cfg SendEmailTemplateConfig
	if err := extractConfig(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExpectedAnswersOf returns the expected answers configured on any
// user-input node type, or nil for other types.
func ExpectedAnswersOf(n *Node) []ExpectedAnswer {
	if n == nil || n.Data == nil {
		return nil
	}
	raw, ok := n.Data["expectedAnswers"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var answers []ExpectedAnswer
	if err := json.Unmarshal(encoded, &answers); err != nil {
		return nil
	}
	return answers
}

// AnswerValidationOf returns the answerValidation record of any node type
// that carries one, or nil.
func AnswerValidationOf(n *Node) *AnswerValidation {
	if n == nil || n.Data == nil {
		return nil
	}
	raw, ok := n.Data["answerValidation"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var av AnswerValidation
	if err := json.Unmarshal(encoded, &av); err != nil {
		return nil
	}
	return &av
}
