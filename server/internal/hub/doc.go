// Package hub implements the websocket side of the channel server.
//
// New(opts) creates a Hub. Hub.Run(ctx) consumes the broker and delivers each
// published event to the channel's local members; it blocks until ctx is
// cancelled, then closes all sockets. Hub.ServeHTTP upgrades a connection and
// serves one socket.
//
// Per socket the hub answers:
//
//	{"event":"whoami"}                               -> {"event":"whoami","data":{"socket_id":"<uuid>"}}
//	{"event":"ping"}                                 -> refreshes the idle deadline, no reply
//	{"event":"subscribe","data":{"channel":"news"}}  -> joins the channel
//	{"event":"subscribe","data":{"channel":"private-x","auth":"<token>"}}
//	                                                 -> joins if the token verifies for this socket,
//	                                                    else {"event":"subscription_error","data":{...}}
//	{"event":"unsubscribe","data":{"channel":"news"}} -> leaves the channel
//	{"event":"client-*","channel":"private-x",...}    -> relayed to the other members
//
// Published events reach members as {"event", "channel", "data"}. A socket
// whose send buffer overflows is disconnected.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package hub
