// Package server provides the local listener that drives authorization and starts backups.
//
// # Routes
//
//	GET /status          plain "Online."
//	GET /run             redirects to the Spotify consent page with a fresh state
//	GET /callback        validates state, exchanges the code, starts a backup
//	GET /runs            run history, newest first
//	GET /runs/{id}       a single run
//
// # Authorization Flow
//
// [AuthFlowController] issues a 16 character state per /run and keeps it in a [StateStore] for ten minutes.
// A callback whose state is missing, unknown, expired or already used is redirected to
// /#error=state_mismatch and no token exchange happens.
//
// A valid callback exchanges the code synchronously and answers with JSON. When the exchange succeeds the
// backup runs in its own goroutine with a context that outlives the request. [AuthFlowController.Wait]
// blocks until those goroutines finish.
//
// # Router Infrastructure
//
// [BasicRouter] uses [http.ServeMux] internally with method filtering. [Middleware] wraps handlers in reverse
// order (last added executes first). [NewRouter] installs [RequestLogger] and a per-client [RateLimiter].
package server
