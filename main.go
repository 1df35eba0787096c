package main

import "github.com/AvaProtocol/ap-filters/cmd"

func main() {
	cmd.Execute()
}
