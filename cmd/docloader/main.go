package main

import "github.com/vietddude/docloader/internal/cli"

func main() {
	cli.Execute()
}
