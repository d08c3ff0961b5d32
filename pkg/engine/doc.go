// Package engine reconciles a guild against a declarative configuration.
//
// # Overview
//
// A reconcile runs in three steps:
//
//  1. State - FetchState reads roles and channels and tags each object with
//     its Ownership
//  2. Diff - CalculateDiff compares a ServerConfig with the ServerState and
//     returns a ServerDiff of create, update, delete and noop entries
//  3. Apply - StateWriter.Apply executes the diff through the rate limiter
//     and retry handler and returns an ApplyBatchResult
//
// # Matching and ownership
//
// Objects are matched by name. Text channel names are compared in the
// platform's canonical form (lower case, hyphens). An object is owned when
// its name, or a channel's topic, contains ManagedMarker. With
// DiffOptions.ManagedOnly set, only owned objects are ever deleted. The
// @everyone role and integration roles are never deleted.
//
// # Apply order
//
// Role writes run first, then category writes, then channel writes, so
// newly created ids can be referenced by later operations. Permission
// overwrites follow, then deletions run channels first and roles last.
//
// # Errors
//
// EngineError classifies failures as transient, throttled, conflict or
// permanent, and carries a code such as ErrCodeValidation. Apply reports
// per-operation failures in its result and only returns an error when its
// arguments are unusable.
package engine
