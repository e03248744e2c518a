// Package mcpd runs per-workspace tool servers over loopback TCP.
//
// A host application constructs a server.Registry, registers tools, and
// calls EnsureServer once per workspace it wants served. Each workspace
// gets its own ephemeral port; clients connect with either Content-Length
// header framing or newline-delimited JSON, and the server answers in
// whichever framing the client chose.
//
//	reg := mcpd.NewRegistry(nil)
//	defer reg.Shutdown()
//
//	reg.Tools().Register(protocol.Tool{Name: "echo"}, echoHandler)
//
//	entry, err := reg.EnsureServer("/path/to/workspace")
//	if err != nil {
//	    // handle
//	}
//	fmt.Println("listening on port", entry.Port)
//
// The subpackages carry the moving parts: pkg/framing decodes both wire
// framings, pkg/protocol holds the message types and method set,
// pkg/server holds the registry, sessions, and dispatcher, and pkg/client
// is a matching client.
package mcpd
