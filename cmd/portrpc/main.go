// Command portrpc calls native messaging hosts from the command line and
// manages their manifests.
//
//	portrpc call --app org.example.host example.Sqrt 2
//	portrpc call --command "/usr/local/bin/example-host" example.Sleep 100
//	portrpc hosts list org.example.host
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "portrpc: %v\n", err)
		os.Exit(1)
	}
}
