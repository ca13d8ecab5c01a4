package main

import "syncio-client/internal/client/cmd"

func main() {
	cmd.Execute()
}
