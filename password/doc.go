// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string layout:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.DummyVerify] spends the same work as a real verification so a
// login for an unknown email costs as much as one for a known email.
package password
