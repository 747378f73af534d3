// Package primitives provides the foundational data model for the ctlfsm engine:
// states, conditions and their numeric ranges, transition rules, event
// definitions, and the Event value passed through the dispatch pipeline.
//
// Core invariants:
// - Rules and definitions are immutable once handed to the engine
// - A condition value matches when it falls in ANY of its ranges
// - Durations of zero mean "immediately satisfied"
//
// Validation lives next to each type; the config package calls it before any
// engine mutation happens.
package primitives
