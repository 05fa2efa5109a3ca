package main

import "github.com/opsgate/opsgate/cmd"

func main() {
	cmd.Execute()
}
