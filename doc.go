// Package agentmem implements interchangeable conversation-memory
// strategies for LLM agents, from keep-everything replay to sliding
// windows, rolling summaries, semantic retrieval, importance-based
// compression, knowledge graphs, OS-style paging and layered composites.
//
// See the memory package for the strategy contract and implementations,
// the agent package for the conversation loop, and the session package for
// managing independent per-session agents.
package agentmem
