package main

import "github.com/jasperwreed/agent-index/internal/cli"

func main() {
	cli.Execute()
}
