package main

import "github.com/jw6ventures/casefile/cmd/casefilectl/cmd"

func main() {
	cmd.Execute()
}
