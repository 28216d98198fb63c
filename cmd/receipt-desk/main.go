package main

import "github.com/eshaffer321/receipt-desk/internal/cli"

func main() {
	cli.Execute()
}
