package main

import "github.com/oshokin/bootstrap-builder/cmd/0bootstrap/cmd"

func main() {
	cmd.Execute()
}
