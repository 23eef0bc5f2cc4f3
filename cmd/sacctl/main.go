package main

import "sac/cmd/sacctl/commands"

func main() {
	commands.Execute()
}
