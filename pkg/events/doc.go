/*
Package events provides an in-memory event broker for agent notifications.

Components publish events as they change state: the sync orchestrator on
manifest fetch, completion, degradation and failure; the reconciler's results
per asset; the restart monitor when it signals a relaunch. Subscribers (the
CLI's event logger, the display collaborator) receive every event on a
buffered channel.

# Delivery

Publish enqueues onto a 100-event channel; a single broadcast goroutine fans
each event out to every subscriber's 50-event buffer. A subscriber whose
buffer is full misses the event rather than blocking the broadcaster, so
events are a notification mechanism only and never carry state that must not
be lost.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(events.New(events.EventAssetEvicted, "evicted old.jpg", "asset", "old.jpg"))

Events get a random UUID and the current time when published without them.
*/
package events
