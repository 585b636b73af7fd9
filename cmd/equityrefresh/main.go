// Command equityrefresh is the CLI entry point for the incremental
// equity data-refresh engine (spec §6.5).
package main

import (
	"github.com/aristath/equityrefresh/cmd/equityrefresh/cmd"
)

func main() {
	cmd.Execute()
}
