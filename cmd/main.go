package main

import "github.com/okian/kaushal/internal/cli"

func main() {
	cli.Execute()
}
