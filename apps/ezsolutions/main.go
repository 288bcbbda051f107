package main

import (
	"github.com/iamez/ez-solutions/internal/cli"
)

func main() {
	cli.Execute()
}
