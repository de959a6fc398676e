package main

import "github.com/hanifauzan/greenmart/cmd"

func main() {
	cmd.Execute()
}
