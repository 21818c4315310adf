// cmd/hyphactl/main.go
// Entrypoint for hyphactl, a debug/introspection CLI that talks to a running
// hyphagw router's optional gRPC control plane (internal/controlplane) to
// stream events or issue a one-off debug Invoke call.
package main

func main() {
	Execute()
}
