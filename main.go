package main

import "github.com/rithindattag/Annotara/cmd"

func main() {
	cmd.Execute()
}
