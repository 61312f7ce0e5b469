// Package main is the entry point for the hllmetrics CLI tool, which ingests
// game-server event logs and computes per-match player statistics.
package main

import "github.com/pable/go-hll-metrics/cmd"

func main() {
	cmd.Execute()
}
