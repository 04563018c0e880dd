// udpmgrctl -- CLI client for the udpmgrd daemon.
package main

import "github.com/dantte-lp/udpmgrd/cmd/udpmgrctl/commands"

func main() {
	commands.Execute()
}
