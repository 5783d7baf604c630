// Package containers provisions service containers for job runs.
//
// Each run gets its own containers: started before the first step executes,
// readiness-checked, and terminated after the job completes regardless of
// outcome. Ports are bound to fixed host ports so steps can reach services
// on declared addresses (e.g. ClickHouse on localhost:9000).
package containers
