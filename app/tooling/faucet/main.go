package main

import "github.com/ardanlabs/faucet/app/tooling/faucet/cmd"

func main() {
	cmd.Execute()
}
