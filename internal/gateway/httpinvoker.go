package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPInvoker calls an organ endpoint over a JSON request/response
// protocol. One POST is one billable operation.
type HTTPInvoker struct {
	endpoint string
	client   *http.Client
}

// NewHTTPInvoker creates an invoker for the given endpoint URL.
func NewHTTPInvoker(endpoint string, timeout time.Duration) *HTTPInvoker {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPInvoker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type invokePayload struct {
	Organ  string         `json:"organ"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

func (h *HTTPInvoker) Invoke(ctx context.Context, organ, tool string, params map[string]any) (InvokeResult, error) {
	body, err := json.Marshal(invokePayload{Organ: organ, Tool: tool, Params: params})
	if err != nil {
		return InvokeResult{}, fmt.Errorf("marshal organ request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return InvokeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("invoke organ %s: %w", organ, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("read organ %s response: %w", organ, err)
	}
	if resp.StatusCode != http.StatusOK {
		return InvokeResult{}, fmt.Errorf("organ %s returned status %d", organ, resp.StatusCode)
	}
	return InvokeResult{Data: data, Size: int64(len(data))}, nil
}
