package main

import "github.com/leleuj/authgate/cmd"

func main() {
	cmd.Execute()
}
