package members

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/adregistry/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleMembers = `
members:
  - member_id: m-1
    member_name: Acme Media
    visibility: public
    agents:
      - url: https://Sales.Acme.example/mcp/
        name: Acme Sales
        type: sales
      - url: https://signals.acme.example
        type: signals
        protocol: a2a
        visibility: private
    publishers:
      - domain: News.Acme.example
  - member_id: m-2
    member_name: Quiet Co
    visibility: members_only
    publishers:
      - domain: quiet.example
`

func TestParse(t *testing.T) {
	agents, publishers, err := Parse([]byte(sampleMembers))
	require.NoError(t, err)
	require.Len(t, agents, 2)
	require.Len(t, publishers, 2)

	assert.Equal(t, types.AgentTypeSales, agents[0].Type)
	assert.Equal(t, types.ProtocolMCP, agents[0].Protocol)
	assert.Equal(t, types.VisibilityPublic, agents[0].Visibility)
	assert.Equal(t, "Acme Media", agents[0].Member.MemberName)

	assert.Equal(t, types.ProtocolA2A, agents[1].Protocol)
	assert.Equal(t, types.VisibilityPrivate, agents[1].Visibility)

	assert.Equal(t, types.VisibilityMembersOnly, publishers[1].Visibility)
}

func TestParse_RequiresKeys(t *testing.T) {
	_, _, err := Parse([]byte("members:\n  - member_name: x\n"))
	assert.Error(t, err)

	_, _, err = Parse([]byte("members:\n  - member_id: a\n    agents:\n      - name: x\n"))
	assert.Error(t, err)
}

func TestFileDirectory_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "members.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleMembers), 0o600))

	d, err := NewFileDirectory(path, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	agents, err := d.RegisteredAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "https://sales.acme.example/mcp", agents[0].URL)

	publishers, err := d.RegisteredPublishers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "news.acme.example", publishers[0].Domain)

	require.NoError(t, os.WriteFile(path, []byte("members: [\n"), 0o600))
	assert.Error(t, d.Reload())
	agents, err = d.RegisteredAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2, "failed reload keeps previous contents")

	require.NoError(t, os.WriteFile(path, []byte("members: []\n"), 0o600))
	require.NoError(t, d.Reload())
	agents, err = d.RegisteredAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestNewFileDirectory_MissingFile(t *testing.T) {
	_, err := NewFileDirectory(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestFileDirectory_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "members.yaml")
	require.NoError(t, os.WriteFile(path, []byte("members: []\n"), 0o600))

	d, err := NewFileDirectory(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.NoError(t, os.WriteFile(path, []byte(sampleMembers), 0o600))
	assert.Eventually(t, func() bool {
		agents, _ := d.RegisteredAgents(context.Background())
		return len(agents) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop")
	}
}
