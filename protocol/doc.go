/*
Package protocol implements the wire format spoken between a console client and a process supervisor over a WebSocket.

There are two messages in this protocol: "command" messages are sent client->server, and "event" messages are sent server->client. Both are JSON objects carried in text frames.

A command frame always contains exactly one command:

	{"target": "WRAPPER", "payload": "restart"}

WRAPPER commands drive the supervisor itself (start, restart, stop). SERVER commands carry arbitrary text that the supervisor forwards to the supervised process.

An event frame contains one or more events separated by '\n':

	{"type": "STATE", "payload": "starting"}
	{"type": "LOG", "payload": "boot"}

Each line is decoded on its own, so a malformed line does not affect the lines around it. Order within a frame is significant and must be preserved by consumers. Unknown event types are passed through to the caller.
*/
package protocol
