// Package inkwell provides the authentication and session-security core of
// the Inkwell blog platform: password login with brute-force lockout, OTP
// step-up verification, JWT issuance with server-side revocation, and the
// supporting stores and limiters.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// inkwell is the public surface. It exposes [Engine], [Builder], [Config],
// the [AccountStore] and [SettingsStore] integration interfaces, and value
// types (AuthOutcome, Account, Event). All internal coordination — OTP
// challenge storage, issuance limiting, credential persistence — lives under
// internal/ and is never exported. The HTTP surface is in httpapi, the
// client-side refresh coordinator in client.
//
// # What this package must NOT do
//
//   - Expose Redis or Postgres clients in its public API.
//   - Keep per-process mutable login state: every read-modify-write on
//     failure counters and lockout timestamps goes through a single atomic
//     store operation.
//   - Reveal through its error surface which of handle or password was wrong.
//
// # Revocation contract
//
// There is no server-side session object. Every token carries the account's
// tokenVersion at issuance time, and validation re-reads the current value;
// bumping tokenVersion invalidates every outstanding token at once, even if
// unexpired.
package inkwell
