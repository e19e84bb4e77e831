/*
Package health provides probes and a bounded polling loop.

A Checker performs one probe and reports a Result. Three kinds exist:

  - TCPChecker: the address accepts a connection (tunnel liveness)
  - HTTPChecker: the endpoint answers with an acceptable status
  - CheckerFunc: any function, used for compose service state polling

A Waiter runs a Checker immediately and then once per interval until it
reports healthy, the timeout expires, or the context is cancelled:

	w := health.NewWaiter(3*time.Minute, 5*time.Second)
	if err := w.WaitFor(ctx, health.NewLocalPortChecker(8083), "api tunnel"); err != nil {
		return err
	}

On timeout the error carries the message of the last failed probe.
*/
package health
