// Package telemetry exposes the connection's Prometheus registry over HTTP and
// reads it back. Handler encodes with expfmt; Fetch, Parse, Sum and Summarise
// decode a text exposition for the client's stats command.
package telemetry
