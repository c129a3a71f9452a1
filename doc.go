// Package admission decides whether a sign-in attempt becomes a session. It
// combines credential verification, federated (OAuth) identities, and a
// decision pipeline that gates admission on email verification and two-factor
// confirmation before any token is signed.
//
// Sign-in gate:
//   - SignInGate evaluates every attempt. Federated attempts are admitted
//     outright because the provider vouches for the identity. Credential
//     attempts require a verified email, and when the account has two-factor
//     enabled a confirmation record must exist and is consumed atomically so
//     a single confirmation never admits two concurrent attempts.
//
// Token synthesis:
//   - TokenSynthesizer re-derives claims from the user store on every refresh
//     instead of copying them forward, so role or two-factor changes take
//     effect at the next refresh without waiting for expiry. Unknown users
//     pass through unchanged.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     registration handler to describe sign-up, login, and refresh events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking authentication.
package admission
