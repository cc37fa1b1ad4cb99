package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/adregistry/capability"
	"github.com/BaSui01/adregistry/internal/ctxkeys"
	"github.com/BaSui01/adregistry/internal/pool"
	"github.com/BaSui01/adregistry/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Probe outcomes reported on metrics.
const (
	probeUpdated     = "updated"
	probeUnknown     = "unknown"
	probeUnreachable = "unreachable"
	probeTimeout     = "timeout"
)

type probeOutcome struct {
	agentType types.AgentType
	profile   *capability.Profile
}

// ProbeAndUpdateAgentTypes infers the type of every agent whose type is not
// known yet, including discovered agents, and stores successful inferences.
// Each probe is bounded by Config.ProbeTimeout; failed and timed-out probes
// leave the agent unknown until the next pass.
func (s *Service) ProbeAndUpdateAgentTypes(ctx context.Context, agents []types.RegisteredAgent) (*ProbeResult, error) {
	ctx, span := s.tracer.Start(ctx, "crawler.probe")
	defer span.End()

	res := &ProbeResult{}
	targets, err := s.probeTargets(ctx, agents, res)
	if err != nil {
		return res, err
	}
	if s.prober == nil {
		res.Skipped += len(targets)
		return res, nil
	}

	log := s.logger.With(ctxkeys.Fields(ctx)...)
	outcomes := make([]string, len(targets))
	idx := make([]int, len(targets))
	for i := range idx {
		idx[i] = i
	}

	err = pool.ForEach(ctx, idx, s.config.Concurrency, func(ctx context.Context, i int) error {
		agent := targets[i]
		start := time.Now()
		out, err := pool.WithTimeout(ctx, s.config.ProbeTimeout, func(ctx context.Context) (probeOutcome, error) {
			t, p := s.prober.InferType(ctx, agent.URL, agent.Protocol)
			return probeOutcome{agentType: t, profile: p}, nil
		})

		switch {
		case errors.Is(err, pool.ErrTaskTimeout):
			log.Warn("agent probe timed out",
				zap.String("agent_url", agent.URL),
				zap.String("code", string(types.ErrProbeTimeout)),
				zap.Duration("timeout", s.config.ProbeTimeout))
			outcomes[i] = probeTimeout
		case err != nil:
			return err
		case out.profile != nil && out.profile.Failed():
			log.Info("agent probe failed",
				zap.String("agent_url", agent.URL),
				zap.String("code", string(types.ErrProbeUnreachable)),
				zap.String("reason", out.profile.DiscoveryError))
			outcomes[i] = probeUnreachable
		case !out.agentType.Known():
			outcomes[i] = probeUnknown
		default:
			if err := s.index.RecordAgentType(ctx, agent.URL, out.agentType); err != nil {
				return err
			}
			log.Info("agent type inferred", zap.String("agent_url", agent.URL), zap.String("agent_type", string(out.agentType)))
			outcomes[i] = probeUpdated
		}
		s.metrics.RecordProbe(outcomes[i], time.Since(start))
		return nil
	})

	for _, o := range outcomes {
		switch o {
		case probeUpdated:
			res.Updated++
		case probeUnknown:
			res.Unknown++
		case probeUnreachable:
			res.Failed++
		case probeTimeout:
			res.TimedOut++
		}
	}
	res.Probed = res.Updated + res.Unknown + res.Failed + res.TimedOut
	span.SetAttributes(
		attribute.Int("probe.probed", res.Probed),
		attribute.Int("probe.updated", res.Updated),
		attribute.Int("probe.timed_out", res.TimedOut),
	)
	return res, err
}

// probeTargets de-duplicates agents and discovered agents by URL and drops
// those whose type is already known.
func (s *Service) probeTargets(ctx context.Context, agents []types.RegisteredAgent, res *ProbeResult) ([]types.RegisteredAgent, error) {
	discovered, err := s.index.Store().ListAgents(ctx, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		if d.Type.Known() {
			known[d.URL] = true
		}
	}

	seen := make(map[string]bool)
	var targets []types.RegisteredAgent
	consider := func(a types.RegisteredAgent) {
		a.URL = types.NormalizeAgentURL(a.URL)
		if a.URL == "" || seen[a.URL] {
			return
		}
		seen[a.URL] = true
		if a.Type.Known() || known[a.URL] {
			res.Skipped++
			return
		}
		targets = append(targets, a)
	}
	for _, a := range agents {
		consider(a)
	}
	for _, d := range discovered {
		consider(types.RegisteredAgent{URL: d.URL, Type: d.Type, Protocol: d.Protocol})
	}
	return targets, nil
}
