// Package debug bridges a Debug Adapter Protocol front end to the MyEngine
// Lua runtime.
//
// The front end speaks request/response DAP. The runtime speaks a small
// fire-and-forget record protocol over TCP with no request ids (see package
// runtime). The Adapter reconciles the two.
//
// # Architecture
//
//	┌──────────────┐  DAP   ┌─────────────────────────────┐  records  ┌─────────┐
//	│  front end   │◀──────▶│ Serve (session loop)        │◀─────────▶│ runtime │
//	└──────────────┘        │  Adapter                    │    TCP    └─────────┘
//	                        │   ├─ Session (lifecycle)    │
//	                        │   ├─ Registry (breakpoints) │
//	                        │   ├─ StackCorrelator        │
//	                        │   └─ Handles / Inspector    │
//	                        └─────────────────────────────┘
//
// Serve owns a single goroutine that consumes one inbox fed by the front-end
// reader and the runtime reader. Only that goroutine calls the Adapter.
//
// # Session States
//
//   - Uninitialized: before initialize
//   - Initialized: capabilities exchanged
//   - Launched: runtime connected, Start sent
//   - Running: script executing (entered optimistically on resume commands)
//   - Stopped: halted on entry, step, breakpoint or exception
//   - Terminated: end notice, transport loss or disconnect
//
// # Lines
//
// Lines and columns are 0-based everywhere inside this package and on the
// runtime wire. LineConverter translates at the front-end boundary according
// to the client's initialize arguments.
//
// # Stack traces
//
// A stackTrace request is answered when the runtime's next StackInfo record
// arrives. Only one request may be outstanding; a second one is answered with
// an error. A held request is answered with an error when the session ends.
package debug
