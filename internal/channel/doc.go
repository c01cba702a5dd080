// Package channel dials the pipeline push channel and keeps a job room joined.
//
// A subscription owns one websocket connection at a time. It sends a join frame
// for its room on every connection, reconnects with a paced, bounded number of
// attempts when the connection drops, and hands inbound frames and connectivity
// changes to a single events.Handler from one goroutine.
package channel
