// Package engine contains the simulation core: the detection, activity
// and heat engines plus the ticker that steps them.
//
// ARCHITECTURAL RULE: engines are constructed in dependency order
// (Detection -> Activity -> Heat) with explicit references, never through
// globals. Mutations emit GameEvents to the EventLog after the fact;
// nothing notifies mid-mutation.
package engine
