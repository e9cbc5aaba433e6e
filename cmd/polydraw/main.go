package main

import "github.com/MeKo-Tech/polydraw/cmd/polydraw/cmd"

func main() {
	cmd.Execute()
}
