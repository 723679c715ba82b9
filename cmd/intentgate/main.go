package main

import "github.com/intent-gate/intentgate/cmd/intentgate/cmd"

func main() {
	cmd.Execute()
}
