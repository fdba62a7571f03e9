package main

import "github.com/feraraujofilho/prod-staging-sync-app-sub001/cmd"

func main() {
	cmd.Execute()
}
