package main

import "github.com/marshallshelly/pebble-record/cmd/pebble-record/commands"

func main() {
	commands.Execute()
}
