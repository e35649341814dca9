/*
Package events provides an in-memory broker for corral's control-plane events.

Task lifecycle transitions (created, started, completed, failed, cancelled)
and recorded version changes are published here so observers can follow the
fleet without polling the store. The API server streams the feed to clients as
JSON lines.

# Delivery

Publishing is non-blocking: events go through a buffered channel into a
broadcast loop, and a subscriber whose buffer is full skips events rather than
stalling the publisher. Delivery is best effort; the store remains the record
of truth for task state.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(events.TaskEvent(events.EventTaskCompleted, task, "playbook finished"))
*/
package events
