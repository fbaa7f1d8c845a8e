package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Client is the interface for chat completion transports.
type Client interface {
	ChatCompletion(ctx context.Context, req Request) (*Response, error)
}

// Payload ceiling in serialized characters. Requests larger than this are
// pruned from the oldest end and rejected if pruning cannot get them under.
const defaultPayloadCeiling = 220_000

const (
	defaultTimeout    = 120 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string

	httpClient     *http.Client
	timeout        time.Duration
	retryDelay     time.Duration
	payloadCeiling int
}

// Option configures an OpenAIClient.
type Option func(*OpenAIClient)

// WithHTTPClient injects the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenAIClient) { c.httpClient = hc }
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *OpenAIClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryDelay sets the pause before the one-shot transient retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *OpenAIClient) { c.retryDelay = d }
}

// WithPayloadCeiling overrides the serialized request size limit.
func WithPayloadCeiling(n int) Option {
	return func(c *OpenAIClient) {
		if n > 0 {
			c.payloadCeiling = n
		}
	}
}

// NewClient creates a chat transport for the given endpoint configuration.
func NewClient(baseURL, apiKey, model string, opts ...Option) *OpenAIClient {
	c := &OpenAIClient{
		baseURL:        baseURL,
		apiKey:         apiKey,
		model:          model,
		timeout:        defaultTimeout,
		retryDelay:     defaultRetryDelay,
		payloadCeiling: defaultPayloadCeiling,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// validate checks required configuration before any network I/O.
func (c *OpenAIClient) validate() error {
	switch {
	case strings.TrimSpace(c.baseURL) == "":
		return &Error{Kind: KindConfig, Msg: "API base URL is not configured"}
	case strings.TrimSpace(c.apiKey) == "":
		return &Error{Kind: KindConfig, Msg: "API key is not configured"}
	case strings.TrimSpace(c.model) == "":
		return &Error{Kind: KindConfig, Msg: "model name is not configured"}
	}
	return nil
}

// ChatCompletion sends one chat completion request. Every failure is a
// typed *Error; nothing here panics or returns raw SDK errors.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	endpoint, err := NormalizeEndpoint(c.baseURL)
	if err != nil {
		return nil, err
	}

	messages, size, err := c.pruneToFit(req)
	if err != nil {
		return nil, err
	}

	sdkOpts := []option.RequestOption{
		option.WithBaseURL(sdkBaseURL(endpoint)),
		option.WithAPIKey(c.apiKey),
		option.WithMaxRetries(0), // retry policy is ours, not the SDK's
	}
	if c.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(c.httpClient))
	}
	client := openai.NewClient(sdkOpts...)

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: convertMessages(req.System, messages),
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	// Some backends reject an empty tools array outright, so tools and
	// tool_choice are attached only when the catalog is non-empty.
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
		if req.ToolChoice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: param.NewOpt(string(req.ToolChoice)),
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := client.Chat.Completions.New(callCtx, params)
	if err != nil && c.shouldRetry(ctx, callCtx, err) {
		select {
		case <-time.After(c.retryDelay):
		case <-callCtx.Done():
		}
		if callCtx.Err() == nil {
			completion, err = client.Chat.Completions.New(callCtx, params)
		}
	}
	if err != nil {
		return nil, c.classify(ctx, callCtx, err, endpoint, size, len(req.Tools) > 0)
	}

	if len(completion.Choices) == 0 {
		return nil, &Error{Kind: KindEmptyResponse, Msg: "no response from model"}
	}

	choice := completion.Choices[0]
	resp := &Response{
		Message: Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
		},
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

// pruneToFit estimates the serialized request size and drops the oldest
// messages until it fits under the ceiling. The system prompt and the most
// recent message are never dropped; if the request is still too large with
// only those left, it fails fast instead of submitting a body the backend
// is likely to reject or stall on.
func (c *OpenAIClient) pruneToFit(req Request) ([]Message, int, error) {
	messages := req.Messages
	size := estimatePayload(req.System, messages, req.Tools)
	for size > c.payloadCeiling && len(messages) >= 2 {
		messages = messages[1:]
		size = estimatePayload(req.System, messages, req.Tools)
	}
	if size > c.payloadCeiling {
		return nil, size, &Error{
			Kind:       KindPayloadTooLarge,
			PayloadLen: size,
			Msg:        fmt.Sprintf("request payload is %d chars even after pruning history (limit %d)", size, c.payloadCeiling),
		}
	}
	return messages, size, nil
}

// estimatePayload approximates the serialized request body size.
func estimatePayload(system string, messages []Message, tools []ToolDef) int {
	size := len(system)
	if data, err := json.Marshal(messages); err == nil {
		size += len(data)
	}
	if len(tools) > 0 {
		if data, err := json.Marshal(tools); err == nil {
			size += len(data)
		}
	}
	return size
}

// shouldRetry reports whether a first-attempt failure warrants the one-shot
// transient retry. HTTP error responses, timeouts and cancellations never do.
func (c *OpenAIClient) shouldRetry(ctx, callCtx context.Context, err error) bool {
	if ctx.Err() != nil || callCtx.Err() != nil {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return false
	}
	return isTransient(err)
}

// isTransient matches transport-level failure signatures worth one retry.
func isTransient(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, sig := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "unexpected EOF", "Failed to fetch"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// classify maps a raw SDK or context error into the transport taxonomy.
func (c *OpenAIClient) classify(ctx, callCtx context.Context, err error, endpoint string, payloadLen int, toolsSent bool) *Error {
	// Caller cancellation wins over the timeout race.
	if ctx.Err() == context.Canceled {
		return &Error{Kind: KindCancelled, Msg: "request cancelled by user", Cause: err}
	}
	if callCtx.Err() == context.DeadlineExceeded {
		return &Error{Kind: KindTimeout, Msg: fmt.Sprintf("request timed out after %s", c.timeout), Cause: err}
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := apierr.Message
		if msg == "" {
			if raw := strings.TrimSpace(apierr.RawJSON()); raw != "" {
				msg = truncate(raw, 200)
			} else {
				msg = fmt.Sprintf("model endpoint returned HTTP %d", apierr.StatusCode)
			}
		}
		return &Error{
			Kind:               KindHTTP,
			StatusCode:         apierr.StatusCode,
			Msg:                msg,
			Cause:              err,
			ToolingUnsupported: toolsSent && apierr.StatusCode >= 400 && apierr.StatusCode < 500,
		}
	}

	return &Error{
		Kind:       KindNetwork,
		Host:       endpointHost(endpoint),
		PayloadLen: payloadLen,
		Msg:        fmt.Sprintf("network error calling %s (payload %d chars)", endpointHost(endpoint), payloadLen),
		Cause:      err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func convertMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					}
				}
				assistant := openai.ChatCompletionAssistantMessageParam{
					ToolCalls: toolCalls,
				}
				if m.Content != "" {
					assistant.Content.OfString = param.NewOpt(m.Content)
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &assistant,
				})
			} else {
				out = append(out, openai.AssistantMessage(m.Content))
			}
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func convertTools(tools []ToolDef) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}
