/*
Package resilience provides a circuit breaker for courier's outbound lookups.

# Overview

The tagging pipeline must never stall a browser request on a slow or dead
directory service. The breaker fails lookups fast once the service has
failed repeatedly, and probes it again after a cool-down.

# Usage

	breaker := resilience.New("directory", resilience.Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, directory.ErrNotFound)
		},
	})

	identity, err := resilience.Execute(ctx, breaker, func(ctx context.Context) (directory.Identity, error) {
		return client.fetch(ctx, id)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open
*/
package resilience
