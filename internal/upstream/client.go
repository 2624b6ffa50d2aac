package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genrelay/internal/relay"
)

// DefaultURL is the Groq OpenAI-compatible chat completions endpoint.
const DefaultURL = "https://api.groq.com/openai/v1/chat/completions"

// Options configures a Client.
type Options struct {
	URL    string
	APIKey string
	// ConnectTimeout bounds dialing the provider.
	ConnectTimeout time.Duration
	// IdleTimeout bounds the wait for response headers and for each body read
	// of a streaming call. It does not apply to Complete. Zero disables it.
	IdleTimeout time.Duration
	// RequestTimeout bounds a whole non-streaming call. Zero disables it.
	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

// Client posts chat-completion payloads to the provider.
type Client struct {
	url            string
	apiKey         string
	idleTimeout    time.Duration
	requestTimeout time.Duration
	httpClient     *http.Client
	streamClient   *http.Client
	log            zerolog.Logger
}

// Response is a provider reply returned as-is for pass-through.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type requestIDKey struct{}

// WithRequestID attaches a correlation id that is forwarded as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// New constructs a provider client.
func New(opts Options) *Client {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// A non-streaming provider sends no headers until the whole completion is
	// generated, so only streaming calls bound the header wait.
	str := tr.Clone()
	str.ResponseHeaderTimeout = opts.IdleTimeout
	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	// Timeout stays 0: streaming calls may outlive any fixed bound, so every
	// request carries its deadline in the context instead.
	return &Client{
		url:            strings.TrimSpace(url),
		apiKey:         opts.APIKey,
		idleTimeout:    opts.IdleTimeout,
		requestTimeout: opts.RequestTimeout,
		httpClient:     &http.Client{Transport: tr, Timeout: 0},
		streamClient:   &http.Client{Transport: str, Timeout: 0},
		log:            lg.With().Str("component", "upstream").Logger(),
	}
}

// Complete performs one blocking call and returns the provider's status, content
// type, and body whatever the status. Only transport failures are errors.
func (c *Client) Complete(ctx context.Context, payload relay.ChatCompletionRequest) (*Response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	payload.Stream = false
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	c.log.Debug().Str("request_id", RequestID(ctx)).Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("upstream complete")
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Stream opens a streaming call and returns the provider's event-stream body.
// The body is closed when ctx is canceled, when it stalls for longer than the
// idle timeout, or when the caller closes it. A non-2xx reply is returned as a
// *StatusError holding the provider's body.
func (c *Client) Stream(ctx context.Context, payload relay.ChatCompletionRequest) (io.ReadCloser, error) {
	payload.Stream = true
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug().Str("request_id", RequestID(ctx)).Int("status", resp.StatusCode).Msg("upstream stream rejected")
		return nil, &StatusError{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        b,
		}
	}
	return relay.NewIdleReader(resp.Body, c.idleTimeout), nil
}

func (c *Client) newRequest(ctx context.Context, payload relay.ChatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", id)
	return req, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	// Caller went away: report the cancellation itself, not a gateway failure.
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	te := &TransportError{Err: err}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		te.Timeout = true
	}
	c.log.Warn().Err(err).Bool("timeout", te.Timeout).Str("request_id", RequestID(ctx)).Msg("upstream transport error")
	return te
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}
