package main

import "github.com/nextlevelbuilder/subgate/cmd"

func main() {
	cmd.Execute()
}
