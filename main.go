package main

import "github.com/kamal-hamza/cardforge/cmd"

func main() {
	cmd.Execute()
}
