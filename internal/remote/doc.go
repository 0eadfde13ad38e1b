// Package remote owns the connection to the product metadata service.
//
// A Session drives the connect and anonymous logon handshake as an explicit
// state machine fed by Transport events. Once authenticated it hands batched
// product info requests to the transport and returns the per-app metadata
// trees as KeyValue nodes. GatewayTransport is the HTTP implementation used
// by the CLI.
package remote
