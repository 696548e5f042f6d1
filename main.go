package main

import "flowgate/internal/cli"

func main() {
	cli.Execute()
}
