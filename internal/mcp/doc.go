// Package mcp implements the Model Context Protocol (MCP) server for codememory.
//
// The server exposes the code memory to AI coding assistants over stdio:
//   - index_files, index_directory: chunk, embed and store code
//   - search_code: semantic search over indexed chunks
//   - get_context: token bounded context with learned patterns
//   - delete_index: drop every chunk of a project
//   - create_memory, get_memories: execution outcomes, insights and feedback
//   - get_patterns, record_pattern_outcome: learned patterns and their counters
//   - chat, codebase_summary: questions and overviews of a project
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Basic Usage
//
//	codememory serve
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "project_id": "billing",
//	    "query": "retry failed payments",
//	    "max_results": 5,
//	    "min_similarity": 0.5,
//	    "file_filter": "src/*.py"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "id": "0d6f…",
//	      "file_path": "src/payments/retry.py",
//	      "chunk_index": 2,
//	      "language": "python",
//	      "content": "def retry(payment): …",
//	      "similarity": 0.81
//	    }
//	  ],
//	  "count": 1,
//	  "duration_ms": 12,
//	  "cache_hit": false
//	}
//
// # Tool: get_context
//
//	Request:
//	{
//	  "name": "get_context",
//	  "arguments": {"project_id": "billing", "task": "add refund endpoint", "max_tokens": 2000}
//	}
//
//	Response:
//	{
//	  "context": "## Learned Patterns from Previous Work\n- **api** …\n\n## src/api.py (similarity: 0.74)\n```\n…\n```\n",
//	  "sources": ["src/api.py"],
//	  "patterns": [{"pattern_type": "api", "success_count": 3, …}]
//	}
//
// # Error Handling
//
// Failures come back as tool results with isError set. The text content is
// a JSON object {"code", "message", "data"} with one of:
//
//	-32602  Invalid params (missing project_id, empty query, bad memory type)
//	-32603  Internal error
//	-32001  Not found (failure recorded for an unknown pattern)
//	-32002  Indexing already in progress for the project
//	-32003  Embedding or completion provider failed
//	-32004  Storage failed
//
// # Concurrency
//
// Tool calls may run concurrently. Indexing of one project is exclusive: a
// second index_files or index_directory call for the same project fails with
// -32002 while the first is running. Search, context and memory tools never
// block on indexing.
package mcp
