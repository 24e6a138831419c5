package main

import "github.com/mcoot/typeroom/internal/cli"

func main() {
	cli.Execute()
}
