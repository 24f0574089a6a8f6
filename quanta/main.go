package main

import "github.com/spingrid/quanta/quanta/cmd"

func main() {
	cmd.Execute()
}
