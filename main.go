package main

import "github.com/thangdam97/mtl-studio/cmd"

func main() {
	cmd.Execute()
}
