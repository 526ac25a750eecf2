// Command flashwear runs flash wear experiments on a simulated MSP430 flash.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/typicaltaco116/msp430-flash-experiment1/flashwear/cmd"
)

func main() {
	atexit.Exit(cmd.Execute())
}
