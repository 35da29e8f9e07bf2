package main

import "github.com/oshokin/safezone/cmd/safezone-simulator/cmd"

func main() {
	cmd.Execute()
}
