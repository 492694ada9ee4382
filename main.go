// Command sanguard is the batch file sanitizer CLI entrypoint.
package main

import "github.com/sanguard/sanguard/cmd/sanguard"

func main() {
	sanguard.Execute()
}
