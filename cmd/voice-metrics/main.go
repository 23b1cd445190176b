package main

import "github.com/RyanBlaney/voice-metrics/cmd"

func main() {
	cmd.Execute()
}
