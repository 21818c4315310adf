// cmd/hyphagw/main.go
// Entrypoint for the hyphagw router binary. Kept intentionally tiny,
// delegating all logic to the root command in root.go.
package main

func main() {
	Execute()
}
