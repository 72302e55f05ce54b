// Package flows holds the verification orchestrators behind the root engine.
//
// Each Run* function takes a dependency struct of plain function fields and
// performs one operation: issue or verify an email code, generate or consume
// backup codes, validate a TOTP code. Flows hold no state between calls and
// never import the root package; storage, metrics and audit are reached only
// through the supplied functions.
package flows
