// Package relay is the broadcast relay displays connect to.
//
// Membership is owned by a single actor goroutine. WebSocket members send
// join and leave frames for named channels; backend publishers push
// payloads to a channel over the HTTP control plane or, optionally, a Redis
// pub/sub channel. Each member has its own writer goroutine so a slow or
// dead socket never holds up the others.
package relay
