package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BaSui01/adregistry/protocol"
)

// FormatsLookup resolves the creative formats a creative agent supports.
type FormatsLookup interface {
	ListFormats(ctx context.Context, agentURL string, client protocol.AgentClient) ([]string, error)
}

// TaskFormatsLookup asks the agent itself through list_creative_formats.
type TaskFormatsLookup struct{}

// ListFormats implements FormatsLookup.
func (TaskFormatsLookup) ListFormats(ctx context.Context, _ string, client protocol.AgentClient) ([]string, error) {
	res, err := client.ExecuteTask(ctx, ToolListCreativeFormats, map[string]any{})
	if err != nil {
		return nil, err
	}
	var body struct {
		Formats []creativeFormat `json:"formats"`
	}
	if err := res.Decode(&body); err != nil {
		return nil, fmt.Errorf("list creative formats: %w", err)
	}
	out := make([]string, 0, len(body.Formats))
	seen := make(map[string]bool, len(body.Formats))
	for _, f := range body.Formats {
		id := f.id()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// creativeFormat accepts format_id as a plain string or as {agent_url, id}.
type creativeFormat struct {
	FormatID json.RawMessage `json:"format_id"`
	Name     string          `json:"name"`
}

func (f creativeFormat) id() string {
	if len(f.FormatID) > 0 {
		var s string
		if json.Unmarshal(f.FormatID, &s) == nil && s != "" {
			return s
		}
		var ref struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(f.FormatID, &ref) == nil && ref.ID != "" {
			return ref.ID
		}
	}
	return f.Name
}

// StaticFormatsLookup serves fixed format lists, keyed by agent URL.
type StaticFormatsLookup struct {
	mu      sync.RWMutex
	formats map[string][]string
}

// NewStaticFormatsLookup copies formats into a new lookup.
func NewStaticFormatsLookup(formats map[string][]string) *StaticFormatsLookup {
	l := &StaticFormatsLookup{formats: make(map[string][]string, len(formats))}
	for k, v := range formats {
		l.formats[k] = append([]string(nil), v...)
	}
	return l
}

// ListFormats implements FormatsLookup. Unknown agents have no formats.
func (l *StaticFormatsLookup) ListFormats(_ context.Context, agentURL string, _ protocol.AgentClient) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string{}, l.formats[agentURL]...), nil
}
