package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(t *testing.T, m *NormalizedMessage) string {
	t.Helper()
	require.NotNil(t, m)
	require.NotNil(t, m.UserReply, "expected a user reply")
	return *m.UserReply
}

func TestMessageAdapter_SyntheticTypes(t *testing.T) {
	adapter := NewMessageAdapter()

	t.Run("delay_complete carries the user state id", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "delay_complete", map[string]any{
			"user_identifier": "user-123",
			"flow_id":         "flow-1",
		})
		assert.Equal(t, "user-123", m.UserStateID)
		assert.False(t, m.HasReply())
	})

	t.Run("scheduled_trigger carries the flow id", func(t *testing.T) {
		m := adapter.Normalize("sms", "scheduled_trigger", map[string]any{"flow_id": "flow-9"})
		assert.Equal(t, "flow-9", m.FlowID)
		assert.False(t, m.HasReply())
	})
}

func TestMessageAdapter_WhatsApp(t *testing.T) {
	adapter := NewMessageAdapter()

	t.Run("text body", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "text", map[string]any{
			"type": "text",
			"text": map[string]any{"body": "  hola  "},
		})
		assert.Equal(t, "hola", reply(t, m))
	})

	t.Run("button text wins over payload", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "button", map[string]any{
			"type":   "button",
			"button": map[string]any{"text": "Yes please", "payload": "BTN_YES"},
		})
		assert.Equal(t, "Yes please", reply(t, m))
	})

	t.Run("button falls back to payload", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "button", map[string]any{
			"type":   "button",
			"button": map[string]any{"payload": "BTN_YES"},
		})
		assert.Equal(t, "BTN_YES", reply(t, m))
	})

	t.Run("interactive button reply uses the title", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "interactive", map[string]any{
			"interactive": map[string]any{
				"type":         "button_reply",
				"button_reply": map[string]any{"id": "ans-1", "title": "Confirm"},
			},
		})
		assert.Equal(t, "Confirm", reply(t, m))
	})

	t.Run("interactive list reply uses the title", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "interactive", map[string]any{
			"interactive": map[string]any{
				"type":       "list_reply",
				"list_reply": map[string]any{"id": "row-2", "title": "Large"},
			},
		})
		assert.Equal(t, "Large", reply(t, m))
	})

	t.Run("media message carries url and caption", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "image", map[string]any{
			"image": map[string]any{"link": "https://cdn.example/x.jpg", "caption": "receipt"},
		})
		require.NotNil(t, m.MediaURL)
		assert.Equal(t, "https://cdn.example/x.jpg", *m.MediaURL)
		require.NotNil(t, m.MediaType)
		assert.Equal(t, "image", *m.MediaType)
		assert.Equal(t, "receipt", reply(t, m))
	})

	t.Run("empty text yields no reply", func(t *testing.T) {
		m := adapter.Normalize(ChannelWhatsApp, "text", map[string]any{
			"type": "text",
			"text": map[string]any{"body": "   "},
		})
		assert.False(t, m.HasReply())
		assert.Equal(t, "", m.TextContent())
	})
}

func TestMessageAdapter_OtherChannels(t *testing.T) {
	adapter := NewMessageAdapter()

	t.Run("email prefers subject over body", func(t *testing.T) {
		m := adapter.Normalize(ChannelEmail, "text", map[string]any{
			"subject": "Order 55",
			"body":    "long body",
		})
		assert.Equal(t, "Order 55", reply(t, m))
	})

	t.Run("email falls back to body then text", func(t *testing.T) {
		m := adapter.Normalize(ChannelGmail, "text", map[string]any{"body": "the body"})
		assert.Equal(t, "the body", reply(t, m))

		m = adapter.Normalize(ChannelGmail, "text", map[string]any{"text": "bare text"})
		assert.Equal(t, "bare text", reply(t, m))
	})

	t.Run("telegram unwraps the message envelope", func(t *testing.T) {
		m := adapter.Normalize(ChannelTelegram, "text", map[string]any{
			"message": map[string]any{"text": "privet"},
		})
		assert.Equal(t, "privet", reply(t, m))
	})

	t.Run("telegram callback query uses callback data", func(t *testing.T) {
		m := adapter.Normalize(ChannelTelegram, "callback_query", map[string]any{
			"callback_query": map[string]any{"data": "opt_2"},
		})
		assert.Equal(t, "opt_2", reply(t, m))
	})

	t.Run("sms tries text then body then message", func(t *testing.T) {
		m := adapter.Normalize(ChannelSMS, "text", map[string]any{"message": "stop"})
		assert.Equal(t, "stop", reply(t, m))

		m = adapter.Normalize(ChannelSMS, "text", map[string]any{"body": "sí"})
		assert.Equal(t, "sí", reply(t, m))
	})

	t.Run("instagram reads flat and nested text", func(t *testing.T) {
		m := adapter.Normalize(ChannelInstagram, "text", map[string]any{"text": "dm"})
		assert.Equal(t, "dm", reply(t, m))

		m = adapter.Normalize(ChannelInstagram, "text", map[string]any{
			"message": map[string]any{"text": "nested dm"},
		})
		assert.Equal(t, "nested dm", reply(t, m))
	})

	t.Run("facebook postback uses the button title", func(t *testing.T) {
		m := adapter.Normalize(ChannelFacebook, "postback", map[string]any{
			"postback": map[string]any{"title": "Get Started", "payload": "GET_STARTED"},
		})
		assert.Equal(t, "Get Started", reply(t, m))
	})

	t.Run("channel name is case insensitive", func(t *testing.T) {
		m := adapter.Normalize("WhatsApp", "text", map[string]any{
			"type": "text",
			"text": map[string]any{"body": "hey"},
		})
		assert.Equal(t, "hey", reply(t, m))
	})

	t.Run("unknown channel uses generic fields", func(t *testing.T) {
		m := adapter.Normalize("carrier-pigeon", "text", map[string]any{"content": "coo"})
		assert.Equal(t, "coo", reply(t, m))
	})
}
