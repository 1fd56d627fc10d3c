package main

import "tinyfm/cmd/tinyfm/commands"

func main() {
	commands.Execute()
}
