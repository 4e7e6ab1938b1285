// Package auth decides who a request comes from and how often it may come.
//
// Authenticators vote Yes, No or Abstain on a request. An AuthChain asks
// them in order and the first Yes or No wins; DefaultDecision settles a
// chain where everyone abstained. Middleware runs the chain as a unit of
// the dispatcher, applies the per-tier RateLimiter and attaches the
// identity with WithIdentity, which also scopes store reads to the
// identity's tenant.
package auth
