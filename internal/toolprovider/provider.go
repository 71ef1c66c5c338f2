package toolprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/resilience"
	"github.com/antigravity-dev/capgate/telemetry"
)

// Provider is the tool-provider bridge contract: list what's callable,
// and call it.
type Provider interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, toolID string, args map[string]interface{}) (CallResult, error)
}

// HTTPProvider calls tools over HTTP against the sandboxed code runner,
// guarded by a circuit breaker and bounded retry.
type HTTPProvider struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         core.Logger
}

// NewHTTPProvider constructs a provider pointed at the code runner's base
// URL, wiring a circuit breaker and retry policy around every call.
func NewHTTPProvider(baseURL string, logger core.Logger, deps resilience.ResilienceDependencies) (*HTTPProvider, error) {
	cb, err := resilience.CreateCircuitBreaker("toolprovider", deps)
	if err != nil {
		return nil, core.NewFrameworkError("toolprovider.NewHTTPProvider", core.KindInvalidArgument, err)
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/toolprovider")
	}
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = 30 * time.Second

	return &HTTPProvider{
		baseURL:        baseURL,
		httpClient:     client,
		circuitBreaker: cb,
		retryConfig:    resilience.DefaultRetryConfig(),
		logger:         logger,
	}, nil
}

func (p *HTTPProvider) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/tools", nil)
	if err != nil {
		return nil, core.NewFrameworkError("toolprovider.ListTools", core.KindToolUnavailable, err)
	}

	var tools []ToolDescriptor
	err = resilience.RetryWithCircuitBreaker(ctx, p.retryConfig, p.circuitBreaker, func() error {
		resp, doErr := p.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("toolprovider: list tools returned status %d: %s", resp.StatusCode, string(body))
		}
		return json.Unmarshal(body, &tools)
	})
	if err != nil {
		return nil, core.NewFrameworkError("toolprovider.ListTools", core.KindToolUnavailable, err)
	}
	return tools, nil
}

// CallTool invokes toolID with args and unwraps the runner's envelope
// before returning — the executor only ever sees Result.
func (p *HTTPProvider) CallTool(ctx context.Context, toolID string, args map[string]interface{}) (CallResult, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return CallResult{}, core.NewFrameworkError("toolprovider.CallTool", core.KindInvalidArgument, err).WithID(toolID)
	}

	var env envelope
	callErr := resilience.RetryWithCircuitBreaker(ctx, p.retryConfig, p.circuitBreaker, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tools/"+toolID, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := p.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("toolprovider: tool %q returned status %d: %s", toolID, resp.StatusCode, string(respBody))
		}
		return json.Unmarshal(respBody, &env)
	})

	telemetry.Counter("toolprovider.call", "tool", toolID, "result", resultLabel(callErr))
	if callErr != nil {
		if p.logger != nil {
			p.logger.WarnWithContext(ctx, "tool call failed", map[string]interface{}{"tool": toolID, "error": callErr.Error()})
		}
		return CallResult{}, core.NewFrameworkError("toolprovider.CallTool", core.KindToolUnavailable, callErr).WithID(toolID)
	}

	return CallResult{Result: env.Result, DurationMs: env.ExecutionTimeMs}, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
