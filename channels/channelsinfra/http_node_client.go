package channelsinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
)

// HTTPNodeClient reenvía nodos a los servicios de canal por HTTP. Cada canal
// corre como proceso aparte y expone el mismo endpoint process-node.
type HTTPNodeClient struct {
	endpoints   map[string]string
	processPath string
	httpClient  *http.Client
}

// NewHTTPNodeClient crea el cliente con el mapa canal -> base URL
func NewHTTPNodeClient(endpoints map[string]string, processPath string, timeout time.Duration) *HTTPNodeClient {
	normalized := make(map[string]string, len(endpoints))
	for channel, base := range endpoints {
		normalized[strings.ToLower(channel)] = strings.TrimRight(base, "/")
	}
	return &HTTPNodeClient{
		endpoints:   normalized,
		processPath: processPath,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SupportedChannels returns the configured channel names in stable order.
func (c *HTTPNodeClient) SupportedChannels() []string {
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EndpointFor returns the full process-node URL for a channel.
func (c *HTTPNodeClient) EndpointFor(channel string) (string, bool) {
	base, ok := c.endpoints[strings.ToLower(channel)]
	if !ok {
		return "", false
	}
	return base + c.processPath, true
}

// Dispatch envía el nodo al servicio del canal. Los fallos de transporte y
// los non-200 no devuelven error Go: devuelven una respuesta con status
// "error" para que el walker la trate como nodo fallido sin avanzar.
func (c *HTTPNodeClient) Dispatch(ctx context.Context, channel string, req engine.ProcessNodeRequest) (*engine.ProcessNodeResponse, error) {
	endpoint, ok := c.EndpointFor(channel)
	if !ok {
		log.Printf("❌ [NodeProcess] Unsupported channel: %s", channel)
		return nil, channels.ErrChannelNotSupported().
			WithDetail("channel", channel).
			WithDetail("supported", c.SupportedChannels())
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errx.Wrap(err, "failed to marshal process node request", errx.TypeInternal)
	}

	log.Printf("📡 [NodeProcess] Forwarding node %s to %s service at %s", req.NextNodeID, channel, endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, errx.Wrap(err, "failed to build process node request", errx.TypeInternal)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			log.Printf("❌ [NodeProcess] Timeout calling %s service", channel)
			return c.errorResponse(req, fmt.Sprintf("Timeout calling %s service", channel)), nil
		}
		log.Printf("❌ [NodeProcess] Error calling %s service: %v", channel, err)
		return c.errorResponse(req, fmt.Sprintf("Error calling %s service: %v", channel, err)), nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [NodeProcess] Channel service returned error: %d - %s", resp.StatusCode, string(respBody))
		return c.errorResponse(req, fmt.Sprintf("Channel service error: %s", string(respBody))), nil
	}

	var out engine.ProcessNodeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, channels.ErrInvalidResponse().
			WithDetail("channel", channel).
			WithDetail("body", string(respBody))
	}

	log.Printf("✅ [NodeProcess] Successfully processed node via %s service", channel)
	return &out, nil
}

// errorResponse arma la respuesta suave de error que los servicios de canal
// devolverían ellos mismos ante un fallo
func (c *HTTPNodeClient) errorResponse(req engine.ProcessNodeRequest, message string) *engine.ProcessNodeResponse {
	flowID := req.FlowID
	nextNodeID := req.NextNodeID
	return &engine.ProcessNodeResponse{
		Status:           engine.ProcessStatusError,
		Message:          message,
		FlowID:           &flowID,
		NextNodeID:       &nextNodeID,
		AutomationExited: false,
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
