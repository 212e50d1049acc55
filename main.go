package main

import "github.com/ethanolivertroy/cve-watch/cmd"

func main() {
	cmd.Execute()
}
