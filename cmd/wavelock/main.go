// Command wavelock holds a laser on a reference frequency.
//
// It talks to a wavemeter, a function generator used as the tuning set-point
// and optionally a power meter, and either serves the frequency lock over
// HTTP (run) or performs a single control call from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
