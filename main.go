// Command gps runs guided policy search from a YAML configuration
package main

import "github.com/samuelfneumann/gogps/cmd"

func main() {
	cmd.Execute()
}
