package main

import "github.com/vibast-solutions/ms-go-rental-payments/cmd"

func main() {
	cmd.Execute()
}
