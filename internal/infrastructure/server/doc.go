// Package server assembles courier: it opens the counter store and the
// container directory, builds the relay connection, the allocator and the
// tagging pipeline, and serves the hook API (plus the optional forward
// proxy) until its context is canceled.
package server
