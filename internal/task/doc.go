// Package task wraps arbitrary Go callables into a uniform executable unit.
//
// A Task captures a callable and its arguments once, at construction, and
// re-uses them on every Execute call. The scheduler only sees the Runnable
// interface; the concrete result type stays with the caller through Future.
//
// Result delivery is one-shot: the first Execute (success or failure)
// resolves the Future, later calls never write it again. A Future that is
// never resolved (its task was removed first) is Abandoned so waiters are
// released instead of blocking forever.
package task
