package main

import "github.com/josephlewis42/bshell/cmd"

func main() {
	cmd.Execute()
}
