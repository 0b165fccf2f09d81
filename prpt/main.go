// Command prpt is the read-side companion to peripetyd: it monitors or
// queries the journal for peripety-marked events and reports block-device
// information on demand.
package main

import (
	"os"

	"github.com/dwlehman/peripety/prpt/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
