// Package main is the courier command.
//
// courier tags requests leaving browser identity containers with a durable
// correlation id and relays each tagging to the local Pioneer process.
//
// Usage:
//
//	# run the daemon until SIGINT or SIGTERM
//	courier serve --relay-url ws://127.0.0.1:45000/ws --directory containers.yaml
//
//	# inspect or reconcile the persisted counter while the daemon is stopped
//	courier counter show
//	courier counter set 5000
//
// Configuration comes from COURIER_* environment variables. Flags override
// the matching variable when given.
package main
