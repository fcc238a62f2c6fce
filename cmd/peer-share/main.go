package main

import "github.com/rudransh-shrivastava/peer-share/internal/cli"

func main() {
	cli.Execute()
}
