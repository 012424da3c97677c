package engineinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
)

var _ engine.LeadResolver = (*HTTPLeadClient)(nil)

// HTTPLeadClient habla con el servicio de leads del landing. Todas las fallas
// son recuperables: el estado del usuario se crea igual, sin lead.
type HTTPLeadClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPLeadClient(baseURL string) *HTTPLeadClient {
	return &HTTPLeadClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Resolve busca el lead por teléfono, luego por email, y si no existe lo crea.
func (c *HTTPLeadClient) Resolve(ctx context.Context, brandID, accountID int64, channel, identifier string, detail *engine.UserDetail) (string, error) {
	if c.baseURL == "" {
		return "", nil
	}

	if accountID == 0 {
		return "", fmt.Errorf("account id is required for lead management API calls")
	}

	var phone, email string
	if detail != nil {
		phone = detail.PhoneNumber
		email = detail.Email
	}

	switch channel {
	case channels.ChannelWhatsApp, channels.ChannelSMS:
		if phone == "" {
			phone = identifier
		}
	case channels.ChannelEmail, channels.ChannelGmail:
		if email == "" {
			email = identifier
		}
	}

	if phone == "" && email == "" {
		return "", nil
	}

	if phone != "" {
		leadID, err := c.checkUserExists(ctx, "phone", phone, accountID)
		if err != nil {
			return "", err
		}
		if leadID != "" {
			log.Printf("✅ Found existing lead by phone: %s", leadID)
			return leadID, nil
		}
	}

	if email != "" {
		leadID, err := c.checkUserExists(ctx, "email", email, accountID)
		if err != nil {
			return "", err
		}
		if leadID != "" {
			log.Printf("✅ Found existing lead by email: %s", leadID)
			return leadID, nil
		}
	}

	leadID, err := c.createUser(ctx, brandID, accountID, phone, email)
	if err != nil {
		return "", err
	}
	if leadID != "" {
		log.Printf("✅ Created new lead: %s", leadID)
	}

	return leadID, nil
}

func (c *HTTPLeadClient) checkUserExists(ctx context.Context, filterBy, filterValue string, accountID int64) (string, error) {
	params := url.Values{}
	params.Set("filter_by", filterBy)
	params.Set("filter_value", filterValue)

	reqURL := fmt.Sprintf("%s/get-users?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build lead lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-user-id", strconv.FormatInt(accountID, 10))

	log.Printf("🌐 Checking if lead exists: %s=%s", filterBy, filterValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call lead management API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read lead lookup response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ Lead management API returned error: %d - %s", resp.StatusCode, string(body))
		return "", nil
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse lead lookup response: %w", err)
	}

	// El servicio responde {"users": [...]}, {"id": ...} o un array pelado
	switch data := payload.(type) {
	case map[string]any:
		if users, ok := data["users"].([]any); ok && len(users) > 0 {
			if first, ok := users[0].(map[string]any); ok {
				if id, ok := first["id"]; ok {
					return leadIDString(id), nil
				}
			}
		} else if id, ok := data["id"]; ok {
			return leadIDString(id), nil
		}
	case []any:
		if len(data) > 0 {
			if first, ok := data[0].(map[string]any); ok {
				if id, ok := first["id"]; ok {
					return leadIDString(id), nil
				}
			}
		}
	}

	log.Printf("📭 Lead not found with %s=%s", filterBy, filterValue)
	return "", nil
}

func (c *HTTPLeadClient) createUser(ctx context.Context, brandID, accountID int64, phone, email string) (string, error) {
	payload := map[string]any{
		"brand_id": brandID,
	}
	if phone != "" {
		payload["phone"] = phone
	}
	if email != "" {
		payload["email"] = email
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal lead creation payload: %w", err)
	}

	reqURL := fmt.Sprintf("%s/add-user", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build lead creation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-user-id", strconv.FormatInt(accountID, 10))

	log.Printf("🌐 Creating new lead with phone=%s, email=%s, brand_id=%d", phone, email, brandID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call lead creation API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read lead creation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("failed to create lead: %d - %s", resp.StatusCode, string(body))
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("failed to parse lead creation response: %w", err)
	}

	// Respuesta {"id": ...} o {"user": {"id": ...}}
	if id, ok := data["id"]; ok {
		return leadIDString(id), nil
	}
	if user, ok := data["user"].(map[string]any); ok {
		if id, ok := user["id"]; ok {
			return leadIDString(id), nil
		}
	}

	return "", fmt.Errorf("unexpected response format from lead creation API: %s", string(body))
}

// leadIDString normaliza el id del lead, que puede llegar como string o número
func leadIDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", id)
	}
}
