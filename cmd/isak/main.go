// Command isak is the Initramfs Swiss Army Knife. See internal/cli for the
// command tree.
package main

import (
	"os"

	"github.com/tjper/isak/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
