package main

import "shares-gate/internal/cli"

func main() {
	cli.Execute()
}
