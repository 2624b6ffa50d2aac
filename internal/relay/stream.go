package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix = "data:"
	// doneMarker is the provider's end-of-stream frame. It carries no text and
	// does not end the relay; upstream EOF does.
	doneMarker = "[DONE]"
)

// StreamEvent is one decoded `data:` frame of a chat-completions stream.
// Only the fields the relay reads are modelled; absence is represented by nil.
type StreamEvent struct {
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice is one entry of StreamEvent.Choices.
type StreamChoice struct {
	Delta *StreamDelta `json:"delta"`
}

// StreamDelta carries the incremental text of a choice.
type StreamDelta struct {
	Content *string `json:"content"`
}

// Stats summarizes one relayed stream.
type Stats struct {
	Lines   int   // non-empty lines read from upstream
	Deltas  int   // content fragments written
	Skipped int   // data: lines that did not decode
	Bytes   int64 // bytes written to the client
}

// ParseDataLine extracts the content fragments carried by a single stream line.
// ok is false when the line is a data: line whose payload does not decode; lines
// without the data: prefix yield no fragments and ok=true.
func ParseDataLine(line string) (frags []string, ok bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, true
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneMarker {
		return nil, true
	}
	var ev StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, false
	}
	for _, ch := range ev.Choices {
		if ch.Delta == nil || ch.Delta.Content == nil {
			continue
		}
		frags = append(frags, *ch.Delta.Content)
	}
	return frags, true
}

// Relay reads a chat-completions event stream from body and writes each
// delta.content fragment to w in arrival order, calling flush after every
// fragment. Lines are reassembled across read boundaries, so a data: line split
// over two network chunks is still delivered. A trailing line without a newline
// is processed at EOF.
//
// Relay returns nil at upstream EOF. It stops between lines when ctx is done and
// returns ctx.Err(). The caller owns body and must close it.
func Relay(ctx context.Context, body io.Reader, w io.Writer, flush func()) (Stats, error) {
	var st Stats
	r := bufio.NewReader(body)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line, rerr := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			st.Lines++
			frags, ok := ParseDataLine(line)
			if !ok {
				st.Skipped++
			}
			for _, f := range frags {
				if f == "" {
					continue
				}
				n, err := io.WriteString(w, f)
				st.Bytes += int64(n)
				if err != nil {
					return st, err
				}
				st.Deltas++
				if flush != nil {
					flush()
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return st, nil
			}
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			return st, rerr
		}
	}
}
