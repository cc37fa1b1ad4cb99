// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
Package types holds the shared vocabulary of the authorization index.

# Overview

types is the lowest package in the module and imports no other internal
package. Everything that crosses a package boundary lives here so that
store, index, crawler and capability never import each other just to
agree on an enum.

# Core types

  - AgentType / Protocol       : what an agent sells and how it is reached
  - AuthorizationSource        : adagents_json (verified) vs agent_claim
  - PropertyType / Identifier  : sellable inventory units and their typed ids
  - Selector / SelectionType   : queries over a publisher's properties
  - Error / ErrorCode          : structured errors with Retryable marking

# Normalization

NormalizeDomain, NormalizeAgentURL and NormalizeIdentifier produce the
natural keys used by every upsert. Two inputs that normalize to the same
key are the same record.
*/
package types
