package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/obentoo/buildwatch/internal/common/httpclient"
	"github.com/obentoo/buildwatch/internal/common/logger"
)

const infoPath = "/v1/info/"

// GatewayTransport talks to an HTTP product-info gateway. The gateway has no
// session of its own, so lifecycle requests are acknowledged by queueing the
// matching event for the next Poll.
type GatewayTransport struct {
	baseURL string
	client  *httpclient.RetryableHTTPClient
	log     *logger.Logger

	mu     sync.Mutex
	events []Event
	wake   chan struct{}
}

// NewGatewayTransport creates a transport for the gateway at baseURL
func NewGatewayTransport(baseURL string, client *httpclient.RetryableHTTPClient) *GatewayTransport {
	if client == nil {
		client = httpclient.NewRetryableHTTPClient()
	}
	return &GatewayTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     logger.Named("gateway"),
		wake:    make(chan struct{}, 1),
	}
}

func (g *GatewayTransport) queue(ev Event) {
	g.mu.Lock()
	g.events = append(g.events, ev)
	g.mu.Unlock()
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Connect checks that the gateway answers. Any HTTP response counts as reachable.
func (g *GatewayTransport) Connect(ctx context.Context) error {
	resp, err := g.client.GetWithContext(ctx, g.baseURL+infoPath)
	if err != nil {
		return fmt.Errorf("reach %s: %w", g.baseURL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	g.log.Debug("gateway %s reachable (status %d)", g.baseURL, resp.StatusCode)
	g.queue(Event{Kind: EventConnected})
	return nil
}

// Disconnect queues EventDisconnected
func (g *GatewayTransport) Disconnect() error {
	g.queue(Event{Kind: EventDisconnected})
	return nil
}

// LogOnAnonymous queues a successful logon; the gateway needs no credentials
func (g *GatewayTransport) LogOnAnonymous() error {
	g.queue(Event{Kind: EventLoggedOn, Result: ResultOK})
	return nil
}

// LogOff queues EventLoggedOff
func (g *GatewayTransport) LogOff() error {
	g.queue(Event{Kind: EventLoggedOff, Result: ResultOK})
	return nil
}

// Poll returns queued events, waiting up to wait for at least one
func (g *GatewayTransport) Poll(ctx context.Context, wait time.Duration) ([]Event, error) {
	if events := g.drain(); len(events) > 0 {
		return events, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-g.wake:
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.drain(), nil
}

func (g *GatewayTransport) drain() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	events := g.events
	g.events = nil
	return events
}

// ProductInfo fetches every id in one request. JSON replies have the shape
// {"status":"success","data":{"<id>":{...}}}; key/value text replies carry
// one block per id. The codec is picked from the body, not the Content-Type.
func (g *GatewayTransport) ProductInfo(ctx context.Context, ids []AppID) (map[AppID]*KeyValue, error) {
	if len(ids) == 0 {
		return map[AppID]*KeyValue{}, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	url := g.baseURL + infoPath + strings.Join(parts, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	g.log.Debug("product info request for %d app(s)", len(ids))
	resp, err := g.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrTransportFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	data, err := decodeInfo(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	result := make(map[AppID]*KeyValue)
	if data == nil {
		return result, nil
	}
	for _, node := range data.Children {
		id, err := ParseAppID(node.Name)
		if err != nil {
			g.log.Warn("ignoring product info entry %q: not an app id", node.Name)
			continue
		}
		result[id] = node
	}
	return result, nil
}

// decodeInfo returns the node holding one child per app id. A body starting
// with '{' is JSON; anything else is key/value text.
func decodeInfo(body []byte) (*KeyValue, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n\ufeff")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		root, err := DecodeJSON(bytes.NewReader(trimmed))
		if err != nil {
			return nil, err
		}
		status := ""
		if node := root.Child("status"); node != nil {
			status = node.Value
		}
		if status != "success" {
			return nil, fmt.Errorf("gateway status %q", status)
		}
		return root.Child("data"), nil
	}

	root, err := ParseText(bytes.NewReader(trimmed))
	if err != nil {
		return nil, err
	}
	data := root
	if root.Name != "" {
		data = &KeyValue{Children: []*KeyValue{root}}
	}
	if wrapped := data.Child("data"); wrapped != nil {
		data = wrapped
	}
	return data, nil
}
