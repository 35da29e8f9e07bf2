package main

import "github.com/oshokin/safezone/cmd/safezone-server/cmd"

func main() {
	cmd.Execute()
}
