package main

import "github.com/nfrund/studysync/cmd/studysync/cmd"

func main() {
	cmd.Execute()
}
