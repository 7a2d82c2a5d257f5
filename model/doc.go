// Package model provides the pieces shared by model backends: strict parsing
// of fenced JSON from model output and a scriptable mock invoker for tests.
// Concrete backends live in the anthropic and openai subpackages; the Invoker
// interface they implement is defined in core.
package model
