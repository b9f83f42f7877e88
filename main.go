package main

import "github.com/invepin-international-LLC/invepin-command-center-sub001/cmd"

func main() {
	cmd.Execute()
}
