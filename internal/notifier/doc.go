// Package notifier delivers reminder texts to subscribers.
//
// Every send waits on a token-bucket rate limiter and runs through a circuit
// breaker. Transient failures are retried with exponential backoff and
// jitter. A recipient that blocked the bot or does not exist fails
// immediately and is not counted against the breaker, so one unreachable
// user cannot open the circuit for everyone else.
//
// # History
//
// For operator visibility the service keeps a small in-memory history of
// recent deliveries.
package notifier
