package main

import (
	"trackvault/cmd"
)

func main() {
	cmd.Execute()
}
