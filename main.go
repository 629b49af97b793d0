package main

import "procnet/cmd"

func main() {
	cmd.Execute()
}
