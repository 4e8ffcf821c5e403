// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package session holds the per-user Session Context: recent turns, open
// sub-tasks and the last dispatch decision.
//
// A Context is owned by exactly one in-flight turn at a time; the
// coordinator serialises access per user, so the type itself is not
// synchronised. Prune keeps it bounded by size, and Condense fits upstream
// specialist output into a character or token budget before it is handed
// to the next specialist.
package session
