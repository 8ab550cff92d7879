package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rn0x/audio2text/internal/cli"
)

func main() {
	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if isUsageError(err) {
			fmt.Fprintln(os.Stderr, "Run 'audio2text --help' for usage.")
		}
		os.Exit(1)
	}
}

func isUsageError(err error) bool {
	message := strings.ToLower(err.Error())
	for _, pattern := range []string{"unknown command", "unknown flag", "accepts ", "required flag"} {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
