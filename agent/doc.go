// Package agent contains the conversational Agent and the Directory that
// routes chats to named agents.
//
// An Agent owns its Conversation, its active tool Registry and a bound
// language model. A chat turn builds the model context from the system
// prompt, the trailing history and (optionally) retrieved passages, invokes
// the model, runs at most one round of tool calls and re-invokes the model
// once for the final answer. Failures never escape Chat: the turn is
// discarded and an apology is returned instead.
//
// Execution model:
//   - Chat, ClearHistory and ReconfigureTools on one Agent are serialized
//   - Different agents share no mutable state besides the Retriever, which
//     must be safe for concurrent queries
//   - Directory.Reload replaces every Agent; references obtained earlier
//     keep working but are no longer reachable through the Directory
package agent
