package main

import "github.com/parisxmas/OxiDB/OxiForms/cmd"

func main() {
	cmd.Execute()
}
