// Package cache provides pluggable minion data cache backends keyed by a
// two-level namespace: a bank and a key within that bank.
//
// # Backend Interface
//
// The [Backend] interface defines the cache primitives: [Backend.Store],
// [Backend.Fetch], [Backend.Flush], [Backend.List], [Backend.Contains],
// and [Backend.Updated]. All implementations satisfy this interface, so
// backends can be swapped without changing host code. Backends that
// assign immutable record identifiers additionally implement
// [Identified].
//
// Failure handling follows one principle: a cache is an optimization, and
// a degraded cache must degrade to a miss, not to a crash. Reads on
// absent or undecodable entries return benign defaults (an empty map,
// zero, false, an empty slice) and statement-level write failures are
// logged and absorbed. The single surfaced error is
// [ErrBackendUnavailable], returned when the backing store cannot be
// reached at all; match it with errors.Is.
//
// # Implementations
//
//   - [NewPGBytea] — Postgres, payload in a bytea column. The serialized
//     payload is stored verbatim, so any [Codec]-representable value
//     round-trips, including binary-unsafe content. Rows carry a uuid
//     record id assigned at insert time ([PGBytea.ID]).
//
//   - [NewPGJSONB] — Postgres, payload in a jsonb column. Byte payloads
//     that are not valid UTF-8 are base64-encoded and flagged on the row
//     so Fetch reverses the transformation exactly; everything else is
//     stored as queryable JSON.
//
//   - [NewRedis] — Redis hashes, one per bank, with a sibling hash of
//     per-key change timestamps. The caller owns the redis.Client.
//
//   - [NewMemory] — In-process map. The reference implementation of the
//     operation-set semantics and the development/test stand-in.
//
// The postgres variants open one connection per operation, execute one
// statement inside an explicit transaction, commit, and close. There is
// no pooling and no retry; concurrency safety is delegated to the
// store's transaction isolation and the atomicity of
// INSERT ... ON CONFLICT DO UPDATE. The data_changed column is advanced
// by a store-side trigger only when the payload bytes actually change,
// which is what [Backend.Updated] reports. [PGBytea.InitSchema] and
// [PGJSONB.InitSchema] execute the documented DDL for operators and
// tests.
//
// # Configuration
//
// The postgres constructors take the host-supplied option map and resolve
// it with [ResolveOptions]; see that function for names, defaults, and
// the deprecated aliases. Behavior is tuned with functional options:
// [WithCodec] (payload serialization, msgpack by default), [WithLogger],
// and [WithPrefix] (Redis key namespacing).
//
// # Typed Fetch
//
// [Backend.Fetch] decodes into generic maps and slices. [FetchAs]
// decodes the stored payload directly into a concrete type:
//
//	found, grains, err := cache.FetchAs[Grains](ctx, c, "minions", "web1")
package cache
