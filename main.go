package main

import "github.com/crystaldolphin/chatbridge/cmd"

func main() {
	cmd.Execute()
}
