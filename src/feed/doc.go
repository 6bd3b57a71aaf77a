// Package feed maintains the subscription to a ledger node's vertex feed.
//
// The Supervisor owns a single websocket connection at a time. It decodes
// every text frame into an Event and forwards it, together with connection
// notices, on its Consumer channel. When the connection fails or is closed
// abnormally, the Supervisor reports the error through Status and dials again
// after a fixed delay, until its context is cancelled or the server closes the
// connection normally.
package feed
