package main

import (
	cmd "github.com/cozy-creator/summarize-server/cmd/summarize"
)

func main() {
	cmd.Execute()
}
