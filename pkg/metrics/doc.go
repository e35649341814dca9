/*
Package metrics exposes Prometheus instrumentation for the control plane.

Collectors are package-level and registered at init: task gauges by status,
queue depth, busy workers, playbook run durations, cancellation and version
change counters, and API request counters. The Collector samples task gauges
from the store on a fixed interval; the executor and API update the rest at
the point of work.

The package also carries the process health checker backing /healthz: named
components report healthy/unhealthy, readiness requires the store, the
coordinator, and the API to be up.

Handler() serves the standard promhttp endpoint, mounted at /metrics.
*/
package metrics
