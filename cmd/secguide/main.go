package main

import "github.com/kirillkom/secguide/internal/adapters/cli"

func main() {
	cli.Execute()
}
