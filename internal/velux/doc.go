// Package velux implements a client session for the Velux KLF200
// gateway's TCP API.
//
// The gateway speaks a binary protocol over TLS on port 51200:
// SLIP-framed transport frames carrying GW_* commands. A Session
// authenticates with the gateway password, loads the node roster from
// the system table, issues position commands and delivers asynchronous
// position change notifications through a callback.
//
// Sessions are single-shot. When the connection drops the session
// closes itself; callers create a new one rather than reconnecting in
// place.
package velux
