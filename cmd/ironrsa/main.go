package main

import "github.com/jmcleod/ironrsa/cmd/ironrsa/cmd"

func main() {
	cmd.Execute()
}
