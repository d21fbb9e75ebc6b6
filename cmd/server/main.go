package main

import "github.com/loopteam/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
