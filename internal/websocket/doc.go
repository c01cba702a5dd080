// Package websocket pushes reconciled job progress to dashboard browsers.
//
// Each browser connects to /ws?job=<id> and joins that job's room. The Hub
// replays the latest snapshot of the job on join and then forwards every
// progress:snapshot message for it. Clients that cannot keep up are dropped.
package websocket
