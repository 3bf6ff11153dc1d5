// The main package for the toolscout executable.
package main

import (
	"github.com/toolscout/toolscout/cmd"
)

func main() {
	cmd.Execute()
}
