package main

import "github.com/shani8dev/shani-deploy/cmd/shani-deploy/cmd"

func main() {
	cmd.Execute()
}
