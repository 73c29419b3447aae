// Package config loads and watches the client configuration file.
//
// Top-level types:
//   - Config{Client}: full config tree parsed from YAML
//   - ClientConfig: host, auth_endpoint, keepalive_interval, auth_timeout,
//     buffer_size, channels [], auth, tls, metrics_addr
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env; Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (10s keepalive, 10s auth
// timeout, 1024 buffered envelopes), then validates URLs, channel names and
// the auth mode.
//
// WatchChannels(ctx, path, current, onChange) uses fsnotify to detect file
// changes and calls onChange with a ChannelChange (added and removed names)
// whenever a valid reload alters the channel list. DiffChannels computes the
// two sets.
package config
