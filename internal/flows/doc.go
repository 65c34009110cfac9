// Package flows contains the pure token-lifecycle state machines:
// validation with clock-skew grace and policy-driven renewal.
//
// # Architecture boundaries
//
// Flow functions receive everything they touch through a Deps struct of
// function fields and sentinel errors, so they stay free of Redis, logging
// and root-package imports. The root engine wires real stores into the Deps;
// tests wire fakes. Each Run* function returns a Result carrying either the
// success payload or a classified reason the root package maps onto its
// public sentinel errors.
//
// # What this package must NOT do
//
//   - Talk to Redis directly — stores are injected as functions.
//   - Log — degradation signals travel through the injected Warn hook.
//   - Import aegis or any sibling internal package.
package flows
