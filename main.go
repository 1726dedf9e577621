// The main package for the validator executable.
package main

import (
	"github.com/JakeFAU/crawl-validator/cmd"
)

func main() {
	cmd.Execute()
}
