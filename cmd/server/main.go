// Command server runs the voice questionnaire assistant.
//
// Usage:
//
//	gdd-voice [serve] [--addr :8080] [--log-level info]
//	gdd-voice questions
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
