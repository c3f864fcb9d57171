package main

import "github.com/agentjido/jido-shell/cmd"

func main() {
	cmd.Execute()
}
