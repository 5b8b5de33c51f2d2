package main

import "github.com/bryanchriswhite/gamescope-portal/cmd/gamescope-portal/commands"

func main() {
	commands.Execute()
}
