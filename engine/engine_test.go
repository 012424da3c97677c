package engine

import (
	"testing"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
)

func TestUserState_IsParkedOnDelay(t *testing.T) {
	t.Run("parked when in automation with delay data", func(t *testing.T) {
		u := &UserState{
			IsInAutomation: true,
			DelayNodeData:  map[string]any{"delay_node_id": "wait-1"},
		}
		assert.True(t, u.IsParkedOnDelay())
	})

	t.Run("not parked without delay data", func(t *testing.T) {
		u := &UserState{IsInAutomation: true}
		assert.False(t, u.IsParkedOnDelay())
	})

	t.Run("not parked outside automation", func(t *testing.T) {
		u := &UserState{
			IsInAutomation: false,
			DelayNodeData:  map[string]any{"delay_node_id": "wait-1"},
		}
		assert.False(t, u.IsParkedOnDelay())
	})
}

func TestUserDetail_IdentifierFor(t *testing.T) {
	detail := &UserDetail{
		PhoneNumber:     "+5491100000001",
		Email:           "ana@example.com",
		InstagramUserID: "ig-77",
		TelegramUserID:  "tg-12",
	}

	t.Run("maps channels to their identifier slot", func(t *testing.T) {
		assert.Equal(t, "+5491100000001", detail.IdentifierFor("whatsapp"))
		assert.Equal(t, "+5491100000001", detail.IdentifierFor("sms"))
		assert.Equal(t, "ana@example.com", detail.IdentifierFor("email"))
		assert.Equal(t, "ana@example.com", detail.IdentifierFor("gmail"))
		assert.Equal(t, "ig-77", detail.IdentifierFor("instagram"))
		assert.Equal(t, "tg-12", detail.IdentifierFor("telegram"))
	})

	t.Run("channel lookup is case insensitive", func(t *testing.T) {
		assert.Equal(t, "+5491100000001", detail.IdentifierFor("WhatsApp"))
	})

	t.Run("unknown channel falls back to custom then phone then email", func(t *testing.T) {
		d := &UserDetail{CustomIdentifier: "ext-9", PhoneNumber: "+549", Email: "a@b.c"}
		assert.Equal(t, "ext-9", d.IdentifierFor("webchat"))

		d.CustomIdentifier = ""
		assert.Equal(t, "+549", d.IdentifierFor("webchat"))

		d.PhoneNumber = ""
		assert.Equal(t, "a@b.c", d.IdentifierFor("webchat"))
	})

	t.Run("nil detail yields empty identifier", func(t *testing.T) {
		var d *UserDetail
		assert.Empty(t, d.IdentifierFor("whatsapp"))
	})
}

func TestUserDetail_SetIdentifierFor(t *testing.T) {
	t.Run("stores under the channel slot", func(t *testing.T) {
		d := &UserDetail{}
		d.SetIdentifierFor("WhatsApp", "+549")
		d.SetIdentifierFor("email", "ana@example.com")
		d.SetIdentifierFor("facebook", "fb-3")

		assert.Equal(t, "+549", d.PhoneNumber)
		assert.Equal(t, "ana@example.com", d.Email)
		assert.Equal(t, "fb-3", d.FacebookUserID)
	})

	t.Run("unknown channel stores the custom identifier", func(t *testing.T) {
		d := &UserDetail{}
		d.SetIdentifierFor("webchat", "visitor-42")
		assert.Equal(t, "visitor-42", d.CustomIdentifier)
	})
}

func TestWebhookRequest_ChannelAccountID(t *testing.T) {
	t.Run("channel identifier wins", func(t *testing.T) {
		r := &WebhookRequest{ChannelIdentifier: "biz-555", ChannelPhoneNumberID: "123"}
		assert.Equal(t, "biz-555", r.ChannelAccountID())
	})

	t.Run("falls back to the legacy phone number id", func(t *testing.T) {
		r := &WebhookRequest{ChannelPhoneNumberID: "123"}
		assert.Equal(t, "123", r.ChannelAccountID())
	})
}

func TestWebhookRequest_Validate(t *testing.T) {
	valid := func() *WebhookRequest {
		return &WebhookRequest{
			Sender:      "+5491100000001",
			BrandID:     7,
			Channel:     "whatsapp",
			MessageType: "text",
		}
	}

	t.Run("accepts a complete request", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		r := valid()
		r.Sender = "  "
		err := r.Validate()
		assert.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))

		r = valid()
		r.BrandID = 0
		assert.Error(t, r.Validate())

		r = valid()
		r.Channel = ""
		assert.Error(t, r.Validate())

		r = valid()
		r.MessageType = ""
		assert.Error(t, r.Validate())
	})
}

func TestMetadataFrom(t *testing.T) {
	req := &WebhookRequest{
		BrandID:           7,
		AccountID:         3,
		Channel:           " WhatsApp ",
		ChannelIdentifier: "biz-555",
	}

	t.Run("normalizes the channel and copies identity", func(t *testing.T) {
		md := MetadataFrom(req, "")
		assert.Equal(t, int64(7), md.BrandID)
		assert.Equal(t, int64(3), md.AccountID)
		assert.Equal(t, "whatsapp", md.Channel)
		assert.Equal(t, "biz-555", md.ChannelAccountID)
	})

	t.Run("stored channel account overrides the webhook one", func(t *testing.T) {
		md := MetadataFrom(req, "biz-persisted")
		assert.Equal(t, "biz-persisted", md.ChannelAccountID)
	})
}
