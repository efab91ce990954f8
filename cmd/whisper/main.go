package main

import "github.com/whispers-app/whispers/internal/cli"

func main() {
	cli.Execute()
}
