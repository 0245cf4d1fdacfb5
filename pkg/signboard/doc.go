// Package signboard defines the data model and wire protocol shared by the
// signboard host and its command-line client.
//
// # Overview
//
// A host process owns an ordered collection of signboards. Clients drive it by
// publishing Commands on a session-scoped bus topic and waiting for a
// correlated Response on a second topic. The bus is fire-and-forget and every
// participant sees every message, so each envelope carries a request id and
// receivers filter on it.
//
// # Protocol
//
// Commands and responses travel inside versioned JSON envelopes (see
// EncodeCommand and DecodeCommand). Decoding never panics: malformed payloads
// come back as a *DecodeError which keeps the request id when it could be
// recovered.
//
// Response codes:
//
//	0  success
//	1  validation failure, or a malformed/unknown command
//	2  unknown signboard id
//	3  no host answered before the client timeout
//
// # Topics
//
//	signboard:{session}:commands
//	signboard:{session}:responses
//
// # Usage Example
//
//	requestID := signboard.NewRequestID()
//	payload, err := signboard.EncodeCommand(requestID, signboard.Command{
//		Action: signboard.ActionCreate,
//		Text:   "Room 4",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	// publish payload on signboard.CommandTopic(session)
package signboard
