package main

import "github.com/qrave1/CoachSpeak/cmd"

func main() {
	cmd.Execute()
}
