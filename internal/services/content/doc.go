// Package content renders funnel steps and broadcast snapshots into
// outbound platform calls.
//
// Sender is the single entry point: it picks the send method by content kind,
// resolves media through Cache (reusing upload references when known) and
// attaches keyboards built by Keyboards. Platform failures never escape
// Send; they are logged and reported as false.
package content
