// Package blocks provides a reusable engine for composing a post out of an
// ordered sequence of typed content blocks.
//
// A post's content is a discriminated union of block variants (text, image
// galleries, embedded social posts, tables, charts, polls and so on). Each
// variant is persisted in its own collection, yet all blocks of a post share a
// single dense, zero-based position sequence. The Service exposes create, read,
// update, delete, bulk insert, bulk delete, reorder and analysis operations and
// keeps that ordering intact across collections by running every mutation in one
// repository transaction scoped to the post.
//
// Dispatch on the block kind goes through the Registry only. Repositories (e.g.
// memory, Postgres, SQLite) are provided under subpackages and only see opaque
// Records; payload shapes are owned by the variant handlers.
//
// Request-scoped caching
//
// Reads may be memoized for the lifetime of one inbound request by attaching a
// RequestCache to the context with WithRequestCache. Mutations issued through
// the same context invalidate it. There is no process-wide cache.
package blocks
