// Package main implements the optiview binary: the dashboard HTTP service
// plus one-shot commands for front computation and snapshot management.
package main

func main() {
	Execute()
}
