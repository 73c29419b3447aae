// Package channelmux multiplexes many logical channels over one websocket
// connection.
//
// A Connection sends a whoami request as soon as it is created and buffers
// every outbound envelope until the transport reports it is open; the buffer is
// then flushed in FIFO order. Subscriptions requested before the server has
// issued a socket_id wait in a backlog and are replayed, in request order, the
// moment the whoami reply arrives.
//
// Channels named private-* or presence-* go through an authorization exchange
// first: the socket_id and channel name are POSTed to the auth endpoint and the
// returned token is attached to the subscribe request. A failed authorization
// is logged and the channel stays unsubscribed; there is no retry.
//
// Inbound frames that name a channel are routed to that channel's handler.
// Frames without a channel go to the listener registered with On for their
// event name. Malformed frames, unknown channels and unknown events are logged
// or ignored; none of them surface as errors.
//
// Concurrency: all connection state is owned by a single goroutine. Public
// methods, transport callbacks, keepalive ticks and authorization results are
// queued to that goroutine and run one at a time, so handlers may call back
// into the Connection freely. Close stops the loop, the keepalive timer and the
// transport; envelopes still buffered at that point are discarded.
//
// Dial wires the gorilla/websocket transport and the HTTP authorizer. New
// accepts any Transport and Authorizer, which is how tests drive the state
// machine without a network.
package channelmux
