package channels

// Channel names. Los servicios de canal corren como procesos aparte; este
// nombre es la clave de enrutamiento hacia el endpoint process-node de cada
// uno.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelEmail     = "email"
	ChannelGmail     = "gmail"
	ChannelSMS       = "sms"
	ChannelTelegram  = "telegram"
	ChannelFacebook  = "facebook"
	ChannelInstagram = "instagram"
)

// NormalizedMessage es la forma común a la que el adapter reduce cualquier
// payload de canal. user_reply alimenta triggers y validación; media_url y
// media_type solo aplican a mensajes con adjuntos.
//
// Los webhooks sintéticos del propio motor no llevan reply: delay_complete
// trae user_state_id y scheduled_trigger trae flow_id.
type NormalizedMessage struct {
	UserReply   *string `json:"user_reply,omitempty"`
	MediaURL    *string `json:"media_url,omitempty"`
	MediaType   *string `json:"media_type,omitempty"`
	UserStateID string  `json:"user_state_id,omitempty"`
	FlowID      string  `json:"flow_id,omitempty"`
}

// TextContent returns the reply text used for trigger matching, empty when
// the message carries none.
func (m *NormalizedMessage) TextContent() string {
	if m == nil || m.UserReply == nil {
		return ""
	}
	return *m.UserReply
}

// HasReply reports whether the user actually typed or pressed something.
func (m *NormalizedMessage) HasReply() bool {
	return m != nil && m.UserReply != nil
}

// ToMap serializa solo los campos presentes, igual que se persiste en la
// auditoría de webhooks.
func (m *NormalizedMessage) ToMap() map[string]any {
	out := map[string]any{}
	if m == nil {
		return out
	}
	if m.UserStateID != "" {
		out["user_state_id"] = m.UserStateID
		return out
	}
	if m.FlowID != "" {
		out["flow_id"] = m.FlowID
		return out
	}
	if m.UserReply != nil {
		out["user_reply"] = *m.UserReply
	}
	if m.MediaURL != nil {
		out["media_url"] = *m.MediaURL
	}
	if m.MediaType != nil {
		out["media_type"] = *m.MediaType
	}
	return out
}
