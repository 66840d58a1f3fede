package main

import "github.com/marcus/stagehand/cmd/stagehand/commands"

func main() {
	commands.Execute()
}
