package main

import (
	"github.com/luma/gredis/cmd"
)

func main() {
	cmd.Execute()
}
