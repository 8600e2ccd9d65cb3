package main

import "github.com/blogem/ha-gateway/cmd"

func main() {
	cmd.Execute()
}
