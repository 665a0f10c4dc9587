package main

import "github.com/joyn-gg/discord.http/cmd"

func main() {
	cmd.Execute()
}
