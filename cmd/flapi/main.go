package main

import "github.com/flapi-dev/flapi/cmd/flapi/cmd"

func main() {
	cmd.Execute()
}
