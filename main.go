package main

import "github.com/timvw/testty/cmd"

func main() {
	cmd.Execute()
}
