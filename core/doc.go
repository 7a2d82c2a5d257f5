// Package core defines the shared data model and service contracts of the
// agent pipeline: persisted records (Memory, Entity, Room), the ephemeral
// per-turn State, the Provider/Action capability interfaces, lifecycle event
// types and payloads, the model invocation facade, and the explicit
// AgentContext passed into every provider and action call.
//
// Packages implementing services (memory stores, model adapters) depend on
// core; core depends only on logging and the character definition.
package core
