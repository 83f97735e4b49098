package main

import "github.com/wentf9/nirvana/cmd"

func main() {
	cmd.Execute()
}
