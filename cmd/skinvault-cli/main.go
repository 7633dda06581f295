package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage())
		os.Exit(1)
	}

	switch args[0] {
	case "escrow":
		os.Exit(runEscrowCommand(args[1:], os.Stdout, os.Stderr))
	case "help", "-h", "--help":
		fmt.Fprintln(os.Stdout, usage())
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(os.Stderr, usage())
		os.Exit(1)
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  skinvault-cli escrow <command> [flags]

Commands:
  create  Create a new escrow for a listed item
  claim   Claim the locked payment after the item transfer
  cancel  Cancel an escrow and refund the buyer
  status  Fetch escrow details by id

Environment:
  SKINVAULT_API          API base URL (default http://localhost:3000)
  SKINVAULT_HMAC_SECRET  shared secret for request signing
`)
}
