// Command omisync syncs Omi conversations into a markdown vault.
package main

import (
	"os"

	"github.com/agentworkforce/omisync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
