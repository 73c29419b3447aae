// Package broker carries published channel events between the REST API and the
// websocket hub, and between server instances.
//
// Backends:
//   - memory: in-process fan-out, single instance only
//   - redis:  one pub/sub channel per topic (go-redis)
//   - amqp:   one fanout exchange per topic, an exclusive queue per subscriber
//     (amqp091-go)
//
// Messages travel as JSON {channel, event, data, origin}.
package broker
