package channels

// ============================================================================
// Channel Listing DTOs
// ============================================================================

// ChannelInfo canal soportado y su endpoint de process-node
type ChannelInfo struct {
	Name        string `json:"name"`
	Endpoint    string `json:"endpoint"`
	Description string `json:"description"`
}

// SupportedChannelsResponse respuesta del listado de canales
type SupportedChannelsResponse struct {
	Channels []ChannelInfo `json:"channels"`
}

// channelDescriptions descripciones estáticas para el listado
var channelDescriptions = map[string]string{
	ChannelWhatsApp:  "WhatsApp Business API",
	ChannelEmail:     "Email (SMTP/SendGrid)",
	ChannelSMS:       "SMS (Twilio/Vonage)",
	ChannelFacebook:  "Facebook Messenger",
	ChannelInstagram: "Instagram Direct Messages",
}

// DescriptionFor returns the human description for a channel name.
func DescriptionFor(channel string) string {
	if d, ok := channelDescriptions[channel]; ok {
		return d
	}
	return channel
}
