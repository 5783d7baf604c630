// Package main is the entry point for the gridci application
package main

import (
	"github.com/gridci/gridci/cmd"
)

func main() {
	cmd.Execute()
}
