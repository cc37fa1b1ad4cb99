// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
Package index implements the federated authorization index.

Two knowledge sources are merged here. Registered agents and publishers
come from members.Directory and are authoritative. Discovered rows come
from crawling and live in a store.Store until their TTL lapses. When both
sources hold the same key, listings surface only the registered record.

Authorization evidence is tagged with its source. adagents_json evidence,
asserted by the publisher's own manifest, outranks agent_claim evidence
asserted by the agent. An agent holding publisher-level authorization with
no property_ids restriction may sell every property of that domain.

Query entry points:

  - ListAllAgents, ListAllPublishers: federated listings built by Reconcile.
  - LookupDomain, GetDomainsForAgent: reverse lookups.
  - ValidateAgentForProduct: selector coverage for a product.
  - ExpandPublisherPropertiesToIdentifiers: flat identifier set for caching
    in request-matching hot paths.
  - IsPropertyAuthorizedForAgent: point lookup by identifier.
*/
package index
