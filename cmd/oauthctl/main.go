package main

import "github.com/pilab-dev/shadow-oauth/cmd/oauthctl/cmd"

func main() {
	cmd.Execute()
}
