// Package await polls for conditions that become true eventually.
//
// The runtime under test completes work asynchronously, so most assertions
// are expressed as "eventually": Until polls a boolean predicate and
// UntilAsserted polls a block of assertions. Both retry at a fixed interval
// until the check passes or the overall timeout elapses, in which case a
// *TimeoutError carrying the last observed failure is returned.
//
// Errors returned by the checked code abort polling immediately unless they
// are declared transient with Ignoring or IgnoringIs, for example the
// per-request timeout of the ingress client:
//
//	err := await.Until(ctx, func(ctx context.Context) (bool, error) {
//		ready, err := client.Output(ctx, id, &out)
//		return ready, err
//	}, await.WithTimeout(30*time.Second), await.IgnoringIs(ingress.ErrRequestTimeout))
package await
