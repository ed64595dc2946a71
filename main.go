package main

import "github.com/darmiel/taskdeck/cmd"

func main() {
	cmd.Execute()
}
