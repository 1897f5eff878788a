package main

import (
	cmd "github.com/embedworks/embedd/cmd/embedd"
)

func main() {
	cmd.Execute()
}
