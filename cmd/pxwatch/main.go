package main

import (
	_ "time/tzdata"

	"pxwatch/internal/cli"
)

func main() {
	cli.Execute()
}
