// Package main is the entry point for execgate.
package main

func main() {
	Execute()
}
