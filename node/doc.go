// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

/*
Package node hosts the RPC stack of a development node.

A node owns the data directory and the RPC endpoints. Services register their
APIs and a Lifecycle on it before Start; the node then opens its endpoints and
starts the services in registration order. Close stops them in reverse order,
closes the endpoints and releases the data directory lock.

	●───────┐
	     New()
	        │
	        ▼
	  INITIALIZING ────Start()─┐
	        │                  │
	        │                  ▼
	    Close()             RUNNING
	        │                  │
	        ▼                  │
	     CLOSED ◀──────Close()─┘

# Endpoints

JSON-RPC is served over HTTP and WebSocket on a single listener when both use
the same port, which is the default. IPC is optional. Every registered API is
also reachable in-process through Attach.

# Data Directory

With a DataDir set, the node locks the instance directory DataDir/Name. Other
services resolve their files, such as the fork cache or a state file, in the
instance directory through ResolvePath. An empty DataDir makes the node ephemeral.
*/
package node
