package main

import "github.com/DrSkyle/scantrail/cmd/scantrail/commands"

func main() {
	commands.Execute()
}
