// Package supervisor runs named goroutines with panic recovery and restart
// backoff. The scheduler hosts its polling loop here so a bug outside task
// execution restarts the loop instead of silently stranding every task.
package supervisor
