// Package report fetches company reports from the job API. Reports can be saved
// to disk as downloaded, or their inline HTML can be rendered as plain text for
// terminals.
package report
