package main

import "github.com/danmuck/onionoffers/cmd/offersctl/command"

func main() {
	command.Execute()
}
