// Package members exposes registered agents and publishers declared by
// member organizations. Registered records are authoritative and read-only
// from the point of view of the index.
package members

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BaSui01/adregistry/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Directory is the read API over registered members.
type Directory interface {
	RegisteredAgents(ctx context.Context) ([]types.RegisteredAgent, error)
	RegisteredPublishers(ctx context.Context) ([]types.RegisteredPublisher, error)
}

// Profile is one member organization as declared in members.yaml.
type Profile struct {
	MemberID   string           `yaml:"member_id"`
	MemberName string           `yaml:"member_name"`
	Visibility types.Visibility `yaml:"visibility"`
	Agents     []AgentEntry     `yaml:"agents"`
	Publishers []PublisherEntry `yaml:"publishers"`
}

// AgentEntry is an agent inside a member profile.
type AgentEntry struct {
	URL        string           `yaml:"url"`
	Name       string           `yaml:"name"`
	Type       string           `yaml:"type"`
	Protocol   string           `yaml:"protocol"`
	Visibility types.Visibility `yaml:"visibility"`
}

// PublisherEntry is a publisher domain inside a member profile.
type PublisherEntry struct {
	Domain     string           `yaml:"domain"`
	Visibility types.Visibility `yaml:"visibility"`
}

type document struct {
	Members []Profile `yaml:"members"`
}

// ============================================================
// StaticDirectory
// ============================================================

// StaticDirectory serves a fixed set of registrations.
type StaticDirectory struct {
	mu         sync.RWMutex
	agents     []types.RegisteredAgent
	publishers []types.RegisteredPublisher
}

// NewStaticDirectory builds a directory from already-resolved records.
func NewStaticDirectory(agents []types.RegisteredAgent, publishers []types.RegisteredPublisher) *StaticDirectory {
	d := &StaticDirectory{}
	d.Set(agents, publishers)
	return d
}

// Set replaces the contents of the directory.
func (d *StaticDirectory) Set(agents []types.RegisteredAgent, publishers []types.RegisteredPublisher) {
	a := make([]types.RegisteredAgent, 0, len(agents))
	for _, ag := range agents {
		ag.URL = types.NormalizeAgentURL(ag.URL)
		if ag.Type == "" {
			ag.Type = types.AgentTypeUnknown
		}
		if ag.Protocol == "" {
			ag.Protocol = types.ProtocolMCP
		}
		if ag.Visibility == "" {
			ag.Visibility = types.VisibilityPublic
		}
		a = append(a, ag)
	}
	p := make([]types.RegisteredPublisher, 0, len(publishers))
	for _, pub := range publishers {
		pub.Domain = types.NormalizeDomain(pub.Domain)
		if pub.Visibility == "" {
			pub.Visibility = types.VisibilityPublic
		}
		p = append(p, pub)
	}
	d.mu.Lock()
	d.agents, d.publishers = a, p
	d.mu.Unlock()
}

func (d *StaticDirectory) RegisteredAgents(_ context.Context) ([]types.RegisteredAgent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.RegisteredAgent(nil), d.agents...), nil
}

func (d *StaticDirectory) RegisteredPublishers(_ context.Context) ([]types.RegisteredPublisher, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.RegisteredPublisher(nil), d.publishers...), nil
}

// ============================================================
// FileDirectory
// ============================================================

// FileDirectory loads member profiles from a YAML file. Call Reload to
// pick up edits; a failed reload keeps the previous contents.
type FileDirectory struct {
	*StaticDirectory
	path   string
	logger *zap.Logger
}

// NewFileDirectory reads path and returns a loaded directory.
func NewFileDirectory(path string, logger *zap.Logger) (*FileDirectory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &FileDirectory{
		StaticDirectory: NewStaticDirectory(nil, nil),
		path:            path,
		logger:          logger.With(zap.String("component", "members_directory")),
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the file.
func (d *FileDirectory) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read members file %s: %w", d.path, err)
	}
	agents, publishers, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parse members file %s: %w", d.path, err)
	}
	d.Set(agents, publishers)
	d.logger.Info("members loaded",
		zap.String("path", d.path),
		zap.Int("agents", len(agents)),
		zap.Int("publishers", len(publishers)))
	return nil
}

// Watch reloads the file every interval until ctx is done. Reload errors
// are logged and the previous contents stay in place.
func (d *FileDirectory) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Reload(); err != nil {
				d.logger.Warn("members reload failed, keeping previous contents", zap.Error(err))
			}
		}
	}
}

// Parse decodes a members document into registered records. An entry
// without its own visibility inherits the member's.
func Parse(data []byte) ([]types.RegisteredAgent, []types.RegisteredPublisher, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	var (
		agents     []types.RegisteredAgent
		publishers []types.RegisteredPublisher
	)
	for i, m := range doc.Members {
		if m.MemberID == "" {
			return nil, nil, fmt.Errorf("members[%d]: member_id is required", i)
		}
		info := types.MemberInfo{MemberID: m.MemberID, MemberName: m.MemberName, Visibility: m.Visibility}
		for j, a := range m.Agents {
			if a.URL == "" {
				return nil, nil, fmt.Errorf("members[%d].agents[%d]: url is required", i, j)
			}
			agents = append(agents, types.RegisteredAgent{
				URL:        a.URL,
				Name:       a.Name,
				Type:       types.ParseAgentType(a.Type),
				Protocol:   types.ParseProtocol(a.Protocol),
				Visibility: firstVisibility(a.Visibility, m.Visibility),
				Member:     info,
			})
		}
		for j, p := range m.Publishers {
			if p.Domain == "" {
				return nil, nil, fmt.Errorf("members[%d].publishers[%d]: domain is required", i, j)
			}
			publishers = append(publishers, types.RegisteredPublisher{
				Domain:     p.Domain,
				Visibility: firstVisibility(p.Visibility, m.Visibility),
				Member:     info,
			})
		}
	}
	return agents, publishers, nil
}

func firstVisibility(vs ...types.Visibility) types.Visibility {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return types.VisibilityPublic
}

var (
	_ Directory = (*StaticDirectory)(nil)
	_ Directory = (*FileDirectory)(nil)
)
