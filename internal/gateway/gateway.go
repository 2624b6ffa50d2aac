package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"genrelay/internal/relay"
	"genrelay/internal/upstream"
	"genrelay/pkg/types"
)

// Provider is the upstream surface the gateway needs. *upstream.Client
// satisfies it.
type Provider interface {
	Complete(ctx context.Context, payload relay.ChatCompletionRequest) (*upstream.Response, error)
	Stream(ctx context.Context, payload relay.ChatCompletionRequest) (io.ReadCloser, error)
}

// Gateway translates generation requests and forwards them to the provider.
// It holds no per-request state and is safe for concurrent use.
type Gateway struct {
	provider Provider
	log      zerolog.Logger
}

// New constructs a Gateway. A nil logger disables logging.
func New(p Provider, lg *zerolog.Logger) *Gateway {
	l := zerolog.Nop()
	if lg != nil {
		l = *lg
	}
	return &Gateway{provider: p, log: l.With().Str("component", "gateway").Logger()}
}

// Complete performs a non-streaming generation and returns the provider reply
// unmodified.
func (g *Gateway) Complete(ctx context.Context, req types.GenerationRequest) (*upstream.Response, error) {
	start := time.Now()
	resp, err := g.provider.Complete(ctx, relay.BuildPayload(req))
	ev := g.log.Debug().Str("model", req.Model).Bool("stream", false).Str("request_id", upstream.RequestID(ctx)).Dur("dur", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("generate failed")
		return nil, err
	}
	ev.Int("status", resp.StatusCode).Msg("generate done")
	return resp, nil
}

// Stream performs a streaming generation, writing each delta fragment to w and
// calling flush after each one. The upstream body is closed before Stream
// returns, whatever the outcome.
func (g *Gateway) Stream(ctx context.Context, req types.GenerationRequest, w io.Writer, flush func()) (relay.Stats, error) {
	start := time.Now()
	body, err := g.provider.Stream(ctx, relay.BuildPayload(req))
	if err != nil {
		g.log.Debug().Str("model", req.Model).Bool("stream", true).Str("request_id", upstream.RequestID(ctx)).Err(err).Msg("stream open failed")
		return relay.Stats{}, err
	}
	defer body.Close()

	src := &readErrRecorder{r: body}
	st, err := relay.Relay(ctx, src, w, flush)
	ev := g.log.Debug().
		Str("model", req.Model).
		Bool("stream", true).
		Str("request_id", upstream.RequestID(ctx)).
		Int("deltas", st.Deltas).
		Int("skipped", st.Skipped).
		Int64("bytes", st.Bytes).
		Dur("dur", time.Since(start))
	switch {
	case err == nil:
		ev.Str("outcome", "eof").Msg("stream done")
	case errors.Is(err, context.Canceled):
		ev.Str("outcome", "canceled").Msg("stream done")
	default:
		ev.Str("outcome", "error").Err(err).Msg("stream done")
	}
	switch {
	case errors.Is(err, relay.ErrIdleTimeout):
		return st, &upstream.TransportError{Err: err, Timeout: true}
	case err != nil && src.err != nil && errors.Is(err, src.err) && ctx.Err() == nil:
		// The provider connection broke mid-body.
		return st, &upstream.TransportError{Err: err}
	}
	return st, err
}

// readErrRecorder remembers the last non-EOF read error so that upstream
// failures can be told apart from failed writes to the client.
type readErrRecorder struct {
	r   io.Reader
	err error
}

func (rr *readErrRecorder) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		rr.err = err
	}
	return n, err
}
