package main

import (
	"github.com/lehigh-university-libraries/dspacekit/cmd"
)

func main() {
	cmd.Execute()
}
