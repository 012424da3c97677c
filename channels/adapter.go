package channels

import (
	"fmt"
	"log"
	"strings"

	"github.com/agentcord/agentflow/engine"
)

// MessageAdapter normaliza payloads específicos de cada canal a la estructura
// común NormalizedMessage. Cada canal tiene su propio parser.
type MessageAdapter struct{}

func NewMessageAdapter() *MessageAdapter {
	return &MessageAdapter{}
}

// Normalize reduce message_body a NormalizedMessage según canal y tipo. Los
// tipos sintéticos (delay_complete, scheduled_trigger) se resuelven antes de
// mirar el canal porque no vienen de ningún servicio de canal.
func (a *MessageAdapter) Normalize(channel, messageType string, messageBody map[string]any) *NormalizedMessage {
	switch messageType {
	case engine.MessageTypeDelayComplete:
		return &NormalizedMessage{UserStateID: stringValue(messageBody["user_identifier"])}
	case engine.MessageTypeScheduledTrigger:
		return &NormalizedMessage{FlowID: stringValue(messageBody["flow_id"])}
	}

	switch strings.ToLower(channel) {
	case ChannelWhatsApp:
		return normalizeWhatsApp(messageType, messageBody)
	case ChannelGmail, ChannelEmail:
		return normalizeEmail(messageBody)
	case ChannelTelegram:
		return normalizeTelegram(messageType, messageBody)
	case ChannelSMS:
		return normalizeSMS(messageBody)
	case ChannelInstagram:
		return normalizeInstagram(messageBody)
	case ChannelFacebook:
		return normalizeFacebook(messageType, messageBody)
	default:
		log.Printf("⚠️ [MessageAdapter] Unknown channel '%s', using generic normalization", channel)
		return normalizeGeneric(messageBody)
	}
}

func normalizeWhatsApp(messageType string, body map[string]any) *NormalizedMessage {
	msg := &NormalizedMessage{}

	switch messageType {
	case "text":
		if stringValue(body["type"]) == "text" {
			if text := mapValue(body["text"]); text != nil {
				msg.UserReply = trimmedOrNil(stringValue(text["body"]))
			}
		}

	case "button":
		if stringValue(body["type"]) == "button" {
			if button := mapValue(body["button"]); button != nil {
				// El texto visible manda sobre el payload interno
				reply, ok := stringField(button, "text")
				if !ok {
					reply = stringValue(button["payload"])
				}
				msg.UserReply = trimmedOrNil(reply)
			}
		}

	case "interactive":
		interactive := mapValue(body["interactive"])
		switch stringValue(interactive["type"]) {
		case "button_reply":
			if reply := mapValue(interactive["button_reply"]); reply != nil {
				title, ok := stringField(reply, "title")
				if !ok {
					title = stringValue(reply["id"])
				}
				msg.UserReply = trimmedOrNil(title)
			}
		case "list_reply":
			if reply := mapValue(interactive["list_reply"]); reply != nil {
				title, ok := stringField(reply, "title")
				if !ok {
					title = stringValue(reply["id"])
				}
				msg.UserReply = trimmedOrNil(title)
			}
		}

	case "image", "video", "audio", "document":
		mediaType := messageType
		msg.MediaType = &mediaType
		if media := mapValue(body[messageType]); media != nil {
			url := stringValue(media["url"])
			if url == "" {
				url = stringValue(media["link"])
			}
			if url != "" {
				msg.MediaURL = &url
			}
			msg.UserReply = trimmedOrNil(stringValue(media["caption"]))
		}
	}

	return msg
}

// normalizeEmail usa el subject como reply principal y cae al cuerpo si no
// hay subject.
func normalizeEmail(body map[string]any) *NormalizedMessage {
	subject := strings.TrimSpace(stringValue(body["subject"]))
	content := strings.TrimSpace(stringValue(body["body"]))
	if content == "" {
		content = strings.TrimSpace(stringValue(body["text"]))
	}
	reply := subject
	if reply == "" {
		reply = content
	}
	return &NormalizedMessage{UserReply: trimmedOrNil(reply)}
}

func normalizeTelegram(messageType string, body map[string]any) *NormalizedMessage {
	// Telegram envuelve el texto en {"message": {"text": ...}}; algunos bots
	// mandan el texto al nivel raíz
	message := mapValue(body["message"])
	if message == nil {
		message = body
	}
	msg := &NormalizedMessage{UserReply: trimmedOrNil(stringValue(message["text"]))}

	if messageType == "callback_query" {
		callback := mapValue(body["callback_query"])
		msg.UserReply = trimmedOrNil(stringValue(callback["data"]))
	}
	return msg
}

func normalizeSMS(body map[string]any) *NormalizedMessage {
	reply, ok := stringField(body, "text")
	if !ok {
		if reply, ok = stringField(body, "body"); !ok {
			reply = stringValue(body["message"])
		}
	}
	return &NormalizedMessage{UserReply: trimmedOrNil(reply)}
}

func normalizeInstagram(body map[string]any) *NormalizedMessage {
	if text, ok := stringField(body, "text"); ok {
		return &NormalizedMessage{UserReply: trimmedOrNil(text)}
	}
	if message := mapValue(body["message"]); message != nil {
		return &NormalizedMessage{UserReply: trimmedOrNil(stringValue(message["text"]))}
	}
	return &NormalizedMessage{}
}

func normalizeFacebook(messageType string, body map[string]any) *NormalizedMessage {
	message := mapValue(body["message"])
	msg := &NormalizedMessage{UserReply: trimmedOrNil(stringValue(message["text"]))}

	if messageType == "postback" {
		if postback := mapValue(body["postback"]); postback != nil {
			title, ok := stringField(postback, "title")
			if !ok {
				title = stringValue(postback["payload"])
			}
			msg.UserReply = trimmedOrNil(title)
		}
	}
	return msg
}

// normalizeGeneric intenta los campos de texto habituales para canales que no
// tienen parser propio.
func normalizeGeneric(body map[string]any) *NormalizedMessage {
	var value any
	for _, key := range []string{"text", "body", "message", "content"} {
		if v, ok := body[key]; ok && !isEmptyValue(v) {
			value = v
			break
		}
	}

	if inner, ok := value.(map[string]any); ok {
		if text := stringValue(inner["text"]); text != "" {
			value = text
		} else {
			value = stringValue(inner["body"])
		}
	}

	var text string
	switch v := value.(type) {
	case nil:
	case string:
		text = v
	default:
		text = fmt.Sprint(v)
	}
	return &NormalizedMessage{UserReply: trimmedOrNil(text)}
}

// ============================================================================
// Payload helpers
// ============================================================================

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// stringField distingue entre clave ausente y valor vacío
func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func mapValue(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func trimmedOrNil(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
