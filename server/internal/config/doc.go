// Package config loads the server-side configuration from the `server:` section
// of the config file.
//
// Config fields:
//   - HTTPPort         port for the REST API and websocket endpoint (default 8080)
//   - Auth.Mode        "apikey" or "none"
//   - Auth.KeyEnv      environment variable holding the expected API key
//   - Auth.Header      HTTP header name (default "x-api-key")
//   - Tokens.SecretEnv environment variable holding the token signing key
//   - Tokens.TTL       lifetime of issued channel tokens (default 5m)
//   - Broker.Backend   memory | redis | amqp (default memory)
//   - Broker.URLEnv    environment variable holding the broker URL
//   - Broker.Topic     redis channel / amqp exchange (default "channelmux.events")
//   - Hub.IdleTimeout  socket read deadline, refreshed by every frame (default 60s)
//   - Hub.SendBuffer   per-socket outgoing queue depth (default 64)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
