// Package protocol defines the JSON envelope exchanged between the extension
// bridge and its host.
//
// Every frame is one JSON object carrying an integer "type" field. The meaning
// of the remaining fields depends on the direction:
//
//	type  inbound (host -> bridge)        outbound (bridge -> host)
//	1     command     {name}              fire-and-forget code {code}
//	2     event       {event, data?}      thenable evaluation  {code, id}
//	3     eval result {res, id}           immediate evaluation {code, id}
//	4     webview     {id, name, data?}   -
//
// Decode turns an inbound frame into one of the tagged Inbound types so callers
// never inspect fields that do not belong to the frame's kind.
package protocol
