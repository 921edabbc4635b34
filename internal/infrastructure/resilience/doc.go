/*
Package resilience provides a circuit breaker for calls to remote collaborators.

The document fetcher and the Jupyter gateway client run their requests through
a breaker so that a dead upstream fails fast instead of tying up executions.

# Usage

	breaker := resilience.New("document-fetch", resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	resp, err := resilience.Execute(breaker, func() (*resty.Response, error) {
		return req.Get(url)
	})

# States

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                               |
	                                           [failure]
	                                               v
	                                             Open

Each transition, and each closed-state Interval, starts a new generation with
zeroed counts. Outcomes of calls started in an earlier generation are ignored.
*/
package resilience
