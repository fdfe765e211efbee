package main

import "github.com/arloliu/go-xmodem/internal/cli"

func main() {
	cli.Execute()
}
