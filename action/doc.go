// Package action implements agent behavior selection and execution: a
// registry resolving action names and similes, a dispatcher that asks the
// model which actions to take and runs them sequentially with per-action
// error isolation, and the built-in REPLY, IGNORE, KNOWLEDGE and
// CURRENT_NEWS actions.
package action
