/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/valyx/valog/cmd/valog/cmd"
)

func main() {
	cmd.Execute()
}
