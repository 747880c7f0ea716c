// Package main provides the relgraph CLI.
package main

import "github.com/mesh-intelligence/relgraph/internal/cli"

func main() {
	cli.Execute()
}
