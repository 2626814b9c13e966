/*
Package heartbeat polls the /control endpoint and restarts the agent when
the server publishes a restart timestamp newer than the last one acted on.

The restart marker (<app-data>/restmp) holds that last timestamp. A tick is
level-triggered and re-reads the marker every time:

	restart > marker   save marker, then relaunch, then stop polling
	restart <= marker  nothing to do
	fetch error        log, try again next tick
	result != success  log, try again next tick

When no marker exists yet the time the monitor was created stands in for
it, so a restart requested before the process started is not replayed. If
the relaunch itself fails the previous marker is written back so the next
tick asks again.

The monitor is the only writer of the marker file.
*/
package heartbeat
