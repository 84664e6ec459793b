// Command voicerelay runs one of the three long-lived processes that
// compose the voice-agent runtime: the control-plane API, the worker pool,
// or the connector.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "voicerelay",
		Short: "Multi-tenant voice-agent runtime",
	}
	root.AddCommand(serveAPICmd())
	root.AddCommand(serveWorkerCmd())
	root.AddCommand(serveConnectorCmd())

	if err := root.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
