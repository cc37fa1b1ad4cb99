// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
Package crawler orchestrates discovery passes that feed the federated index.

# Pass

CrawlAllAgents runs one pass:

 1. Each sales agent is asked for its authorized properties through a
    ClaimFetcher. Claimed properties are recorded as agent_claim evidence.
 2. PopulateFederatedIndex fetches adagents.json for every registered
    publisher and records the agents and properties it authorizes. It then
    validates every domain a sales agent claims (stored claims plus this
    pass's) and records the claim with the validation outcome. A claimed
    domain whose manifest could not be fetched is left as stored.
 3. ProbeAndUpdateAgentTypes probes agents of unknown type and stores
    successful inferences.

Each domain is fetched at most once per pass. Fetch failures are logged and
the domain is skipped until the next pass; only index write failures abort
a pass.

# Concurrency

All fan-out is bounded by Config.Concurrency (default 5) through
internal/pool. Every probe races a Config.ProbeTimeout timer (default 10s).
The Service is single-flight: a pass requested while another is running
returns the last completed Result.
*/
package crawler
