package main

import "github.com/nudge-project/nudge/internal/cli"

func main() {
	cli.Execute()
}
