package main

import "github.com/kairosocial/kairo/cmd"

func main() {
	cmd.Execute()
}
