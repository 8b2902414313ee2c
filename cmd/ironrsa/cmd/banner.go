package cmd

import (
	"fmt"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const banner = `
  _____                 _____   _____
 |_   _|               |  __ \ / ____|  /\
   | |  _ __ ___  _ __ | |__) | (___   /  \
   | | | '__/ _ \| '_ \|  _  / \___ \ / /\ \
  _| |_| | | (_) | | | | | \ \ ____) / ____ \
 |_____|_|  \___/|_| |_|_|  \_\_____/_/    \_\

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  EasyRSA Issuance Service - Version %s\x1b[0m\n\n", Version)
}
