// Command tracker runs only the tracker server. It accepts the same flags as
// "peer-share tracker".
package main

import (
	"os"

	"github.com/rudransh-shrivastava/peer-share/internal/cli"
)

func main() {
	os.Args = append([]string{os.Args[0], "tracker"}, os.Args[1:]...)
	cli.Execute()
}
