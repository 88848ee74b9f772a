// Package notify delivers user-visible notifications, such as the "missing
// role" warning raised when a container has no role configured.
//
// Notify never blocks the caller on delivery and never returns an error.
// Failures are logged.
package notify
