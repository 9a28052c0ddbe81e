package main

import "driver/cmd"

func main() {
	cmd.Execute()
}
