// Command agent is the terminal console for a support agent: it logs in,
// connects the notifier channel and drives claims and chats.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
