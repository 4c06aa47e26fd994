package main

import "github.com/emrgen/linksync/cmd"

func main() {
	cmd.Execute()
}
