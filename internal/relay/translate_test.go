package relay

import (
	"encoding/json"
	"sort"
	"testing"

	"genrelay/pkg/types"
)

func payloadKeys(t *testing.T, p ChatCompletionRequest) []string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var alwaysKeys = []string{"max_tokens", "messages", "model", "stream", "temperature", "top_p"}

func TestBuildPayload_DefaultsOnlyAlwaysFields(t *testing.T) {
	p := BuildPayload(types.NewGenerationRequest("m1", "hello"))
	if got := payloadKeys(t, p); !equalKeys(got, alwaysKeys) {
		t.Fatalf("keys=%v want %v", got, alwaysKeys)
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != "user" || p.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", p.Messages)
	}
	if p.MaxTokens != 1024 || p.Temperature != 1.0 || p.TopP != 1.0 || p.Stream {
		t.Fatalf("unexpected scalars: %+v", p)
	}
}

func TestBuildPayload_ZeroTemperatureStillSent(t *testing.T) {
	req := types.NewGenerationRequest("m", "p")
	req.Temperature = 0
	req.TopP = 0
	if got := payloadKeys(t, BuildPayload(req)); !equalKeys(got, alwaysKeys) {
		t.Fatalf("keys=%v", got)
	}
}

func TestBuildPayload_OptionalFields(t *testing.T) {
	zero := int64(0)
	stop := "END"
	empty := ""
	cases := []struct {
		name string
		mut  func(*types.GenerationRequest)
		want []string
	}{
		{"seed zero counts", func(r *types.GenerationRequest) { r.Seed = &zero }, []string{"seed"}},
		{"stop set", func(r *types.GenerationRequest) { r.Stop = &stop }, []string{"stop"}},
		{"stop empty omitted", func(r *types.GenerationRequest) { r.Stop = &empty }, nil},
		{"moderation", func(r *types.GenerationRequest) { r.Moderation = true }, []string{"moderation"}},
		{"json mode", func(r *types.GenerationRequest) { r.JSONMode = true }, []string{"response_format"}},
		{"stream flag is not optional", func(r *types.GenerationRequest) { r.Stream = true }, nil},
		{"all", func(r *types.GenerationRequest) {
			r.Seed = &zero
			r.Stop = &stop
			r.Moderation = true
			r.JSONMode = true
		}, []string{"moderation", "response_format", "seed", "stop"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := types.NewGenerationRequest("m", "p")
			tc.mut(&req)
			want := append(append([]string(nil), alwaysKeys...), tc.want...)
			sort.Strings(want)
			if got := payloadKeys(t, BuildPayload(req)); !equalKeys(got, want) {
				t.Fatalf("keys=%v want %v", got, want)
			}
		})
	}
}

func TestBuildPayload_Values(t *testing.T) {
	seed := int64(42)
	stop := "\n\n"
	req := types.NewGenerationRequest("m", "p")
	req.Seed = &seed
	req.Stop = &stop
	req.JSONMode = true
	req.Stream = true
	p := BuildPayload(req)
	if p.Seed == nil || *p.Seed != 42 {
		t.Fatalf("seed=%v", p.Seed)
	}
	seed = 7
	if *p.Seed != 42 {
		t.Fatalf("payload seed aliases the request")
	}
	if p.Stop != "\n\n" || !p.Stream {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.ResponseFormat == nil || p.ResponseFormat.Type != "json_object" {
		t.Fatalf("response_format=%+v", p.ResponseFormat)
	}
}
