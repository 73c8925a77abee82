package main

import "github.com/goplus/cpm/cmd/cpm/internal"

func main() {
	internal.Execute()
}
