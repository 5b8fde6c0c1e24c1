package main

import "github.com/youmna-rabie/socket-relay/internal/cli"

func main() {
	cli.Execute()
}
