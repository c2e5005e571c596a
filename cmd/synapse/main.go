// Command synapse assembles per-prompt context documents for agent sessions.
package main

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
