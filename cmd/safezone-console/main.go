package main

import "github.com/oshokin/safezone/cmd/safezone-console/cmd"

func main() {
	cmd.Execute()
}
