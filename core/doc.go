// Package core provides the foundational domain types shared by chatmesh
// packages:
//
//   - Message and Conversation (per-agent chat history)
//   - Content and Part (role-tagged model context, including tool calls)
//   - SearchResult and Retriever (retrieval capability contract)
//   - The error taxonomy (ConfigurationError, NotFoundError, CapabilityError)
//
// Implementation concerns (providers, stores, agents) live in their own
// packages and depend on these small contracts.
package core
