/*
Package api exposes the control plane over HTTP JSON.

The server is a thin layer over the coordinator: handlers decode and validate
requests, delegate, and render responses. No business logic lives here.
Submission endpoints return 202 with the created task IDs; task reads include
the live current step while processing and the parsed PLAY RECAP and display
summaries once output is captured.

# Error mapping

Domain sentinel errors map onto HTTP statuses: validation failures to 400,
missing rows to 404, conflicts (cancelling a finished task, duplicate
cancellation) to 409, anything else to 500. The response body is always
{"error": "..."}.

# Routes

	POST /api/v1/instances/{id}/update    submit a single-instance update
	POST /api/v1/updates/batch            submit a batch update
	POST /api/v1/instances/{id}/actions   start/stop/restart one instance
	POST /api/v1/actions/bulk             start/stop/restart many instances
	GET  /api/v1/tasks                    list tasks (status, instance_id, server_id)
	GET  /api/v1/tasks/{id}               task detail with progress and parsed output
	POST /api/v1/tasks/{id}/cancel        cancel pending or in-flight
	GET  /api/v1/instances                list instances
	GET  /api/v1/instances/{id}           instance detail
	GET  /api/v1/instances/{id}/history   version history
	POST /api/v1/instances/{id}/observe   agent-reported version observation
	GET  /api/v1/events                   JSON-lines event stream
	GET  /metrics, /healthz, /readyz, /livez  operational endpoints

All requests are instrumented with prometheus counters and debug logging.
*/
package api
